// Package xmlenc renders invoices into the FA(2) XML structure accepted by KSeF.
//
// Encoding is a pure function of its input: the creation timestamp in the
// header is taken from the issue date, so the same invoice always yields the
// same document.
package xmlenc

import (
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	dec "github.com/rezonia/ksef-connector/internal/decimal"
	"github.com/rezonia/ksef-connector/internal/model"
)

// Namespace is the FA(2) schema namespace
const Namespace = "http://crd.gov.pl/wzor/2023/06/29/12648/"

// Defaults substituted for missing input
const (
	DefaultDescription = "Towar lub usługa"
	DefaultUnit        = "szt."
	DefaultCurrency    = "PLN"
	DefaultCountryCode = "PL"
	SystemInfo         = "ksef-connector"
)

var dateLayouts = []string{"2006-01-02", "02.01.2006", "2006/01/02", "02-01-2006", time.RFC3339}

// Encode renders inv as seller sellerNIP / sellerName.
// Malformed dates are emitted verbatim and unparsable amounts count as zero.
func Encode(inv model.Invoice, sellerNIP, sellerName string) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("Faktura")
	root.CreateAttr("xmlns", Namespace)

	issue, issueOK := parseDate(inv.IssueDate)

	writeHeader(root, inv.IssueDate, issue, issueOK)
	writeSeller(root, sellerNIP, sellerName)
	writeBuyer(root, inv.Buyer)

	lines := make([]line, len(inv.Items))
	for i, item := range inv.Items {
		lines[i] = normalize(item)
	}

	fa := root.CreateElement("Fa")
	text(fa, "KodWaluty", orDefault(inv.Currency, DefaultCurrency))
	text(fa, "P_1", dateText(inv.IssueDate, issue, issueOK))
	text(fa, "P_2", inv.Number)
	if strings.TrimSpace(inv.SaleDate) != "" {
		sale, saleOK := parseDate(inv.SaleDate)
		text(fa, "P_6", dateText(inv.SaleDate, sale, saleOK))
	}
	period := fa.CreateElement("OkresFa")
	text(period, "RokMiesiac", YearMonth(inv.IssueDate))

	writeTotals(fa, lines)
	writeAnnotations(fa)
	text(fa, "RodzajFaktury", "VAT")

	for i, l := range lines {
		writeLine(fa, i+1, l)
	}

	doc.Indent(2)
	return doc.WriteToString()
}

// YearMonth derives "YYYY-MM" from a date, or "" when the date cannot be parsed
func YearMonth(date string) string {
	t, ok := parseDate(date)
	if !ok {
		return ""
	}
	return t.Format("2006-01")
}

func writeHeader(root *etree.Element, raw string, issue time.Time, ok bool) {
	h := root.CreateElement("Naglowek")
	code := h.CreateElement("KodFormularza")
	code.CreateAttr("kodSystemowy", "FA (2)")
	code.CreateAttr("wersjaSchemy", "1-0E")
	code.SetText("FA")
	text(h, "WariantFormularza", "2")
	if ok {
		text(h, "DataWytworzeniaFa", issue.Format("2006-01-02")+"T00:00:00Z")
	} else {
		text(h, "DataWytworzeniaFa", raw)
	}
	text(h, "SystemInfo", SystemInfo)
}

func writeSeller(root *etree.Element, nip, name string) {
	p := root.CreateElement("Podmiot1")
	id := p.CreateElement("DaneIdentyfikacyjne")
	text(id, "NIP", nip)
	text(id, "Nazwa", name)
	addr := p.CreateElement("Adres")
	text(addr, "KodKraju", DefaultCountryCode)
}

func writeBuyer(root *etree.Element, buyer model.Party) {
	p := root.CreateElement("Podmiot2")
	id := p.CreateElement("DaneIdentyfikacyjne")
	text(id, "NIP", buyer.NIP)
	text(id, "Nazwa", buyer.Name)
	addr := p.CreateElement("Adres")
	text(addr, "KodKraju", orDefault(buyer.CountryCode, DefaultCountryCode))
	if strings.TrimSpace(buyer.Address) != "" {
		text(addr, "AdresL1", buyer.Address)
	}
}

func writeTotals(fa *etree.Element, lines []line) {
	totals := bucketTotals(lines)
	gross := dec.Zero
	for _, b := range buckets {
		t, ok := totals[b.net]
		if !ok {
			continue
		}
		text(fa, b.net, dec.Format(t.net))
		if b.vat != "" {
			text(fa, b.vat, dec.Format(t.vat))
		}
		gross = gross.Add(t.net).Add(t.vat)
	}
	text(fa, "P_15", dec.Format(gross))
}

func writeAnnotations(fa *etree.Element) {
	a := fa.CreateElement("Adnotacje")
	text(a, "P_16", "2")
	text(a, "P_17", "2")
	text(a, "P_18", "2")
	text(a, "P_18A", "2")
	text(a.CreateElement("Zwolnienie"), "P_19N", "1")
	text(a.CreateElement("NoweSrodkiTransportu"), "P_22N", "1")
	text(a, "P_23", "2")
	text(a.CreateElement("PMarzy"), "P_PMarzyN", "1")
}

func writeLine(fa *etree.Element, no int, l line) {
	w := fa.CreateElement("FaWiersz")
	text(w, "NrWierszaFa", itoa(no))
	text(w, "P_7", l.description)
	text(w, "P_8A", l.unit)
	text(w, "P_8B", dec.FormatQuantity(l.quantity))
	text(w, "P_9A", dec.Format(l.unitPrice))
	text(w, "P_11", dec.Format(l.net))
	text(w, "P_11Vat", dec.Format(l.vat))
	text(w, "P_12", l.rate)
}

// line is a LineItem with every field resolved
type line struct {
	description string
	unit        string
	quantity    decimal.Decimal
	unitPrice   decimal.Decimal
	net         decimal.Decimal
	vat         decimal.Decimal
	rate        string
}

func normalize(item model.LineItem) line {
	l := line{
		description: orDefault(item.Description, DefaultDescription),
		unit:        orDefault(item.Unit, DefaultUnit),
		quantity:    dec.ParseAmount(item.Quantity),
		unitPrice:   dec.ParseAmount(item.UnitPrice),
		net:         dec.ParseAmount(item.NetAmount).Round(2),
		rate:        normalizeRate(item.VATRate),
	}
	if strings.TrimSpace(item.Quantity) == "" {
		l.quantity = decimal.NewFromInt(1)
	}

	switch {
	case strings.TrimSpace(item.NetAmount) == "" && !l.unitPrice.IsZero():
		l.net = dec.Mul(l.quantity, l.unitPrice)
	case l.unitPrice.IsZero() && !l.net.IsZero() && !l.quantity.IsZero():
		l.unitPrice = l.net.Div(l.quantity).Round(2)
	}

	if strings.TrimSpace(item.VATAmount) != "" {
		l.vat = dec.ParseAmount(item.VATAmount).Round(2)
	} else {
		l.vat = dec.VATForCode(l.net, l.rate)
	}
	return l
}

func normalizeRate(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	code = strings.TrimSuffix(code, "%")
	if code == "" {
		return "23"
	}
	return code
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func dateText(raw string, t time.Time, ok bool) string {
	if ok {
		return t.Format("2006-01-02")
	}
	return raw
}

func text(parent *etree.Element, tag, value string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(value)
	return el
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
