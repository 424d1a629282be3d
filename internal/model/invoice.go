package model

// InvoiceStatus is the local lifecycle state of an invoice
type InvoiceStatus string

const (
	StatusDraft    InvoiceStatus = "DRAFT"
	StatusSent     InvoiceStatus = "SENT"
	StatusAccepted InvoiceStatus = "ACCEPTED"
	StatusRejected InvoiceStatus = "REJECTED"
)

// IsTerminal reports whether no further status change is expected
func (s InvoiceStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Invoice is a sales invoice as entered by the user.
// Dates and amounts are kept as entered; the encoder normalizes them.
type Invoice struct {
	ID        string     `json:"id" yaml:"id"`
	Number    string     `json:"number" yaml:"number"`
	IssueDate string     `json:"issue_date" yaml:"issue_date"`
	SaleDate  string     `json:"sale_date,omitempty" yaml:"sale_date"`
	Currency  string     `json:"currency,omitempty" yaml:"currency"`
	Buyer     Party      `json:"buyer" yaml:"buyer"`
	Items     []LineItem `json:"items" yaml:"items"`

	Status          InvoiceStatus `json:"status,omitempty" yaml:"status"`
	ReferenceNumber string        `json:"reference_number,omitempty" yaml:"reference_number"`
	KSeFNumber      string        `json:"ksef_number,omitempty" yaml:"ksef_number"`
}

// Party is a buyer or seller
type Party struct {
	NIP         string `json:"nip" yaml:"nip"`
	Name        string `json:"name" yaml:"name"`
	Address     string `json:"address,omitempty" yaml:"address"`
	CountryCode string `json:"country_code,omitempty" yaml:"country_code"`
}

// LineItem is a single invoice row.
// VATRate is a rate code: "23", "8", "5", "0", "zw", "np" or "oo".
// VATAmount is optional; when blank it is computed from NetAmount and VATRate.
type LineItem struct {
	Description string `json:"description" yaml:"description"`
	Unit        string `json:"unit,omitempty" yaml:"unit"`
	Quantity    string `json:"quantity,omitempty" yaml:"quantity"`
	UnitPrice   string `json:"unit_price,omitempty" yaml:"unit_price"`
	NetAmount   string `json:"net_amount" yaml:"net_amount"`
	VATRate     string `json:"vat_rate" yaml:"vat_rate"`
	VATAmount   string `json:"vat_amount,omitempty" yaml:"vat_amount"`
}
