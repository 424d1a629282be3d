package xmlenc

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// bucket maps a group of rate codes onto the P_13_x / P_14_x summary fields
type bucket struct {
	net   string
	vat   string
	codes []string
}

// buckets is in document order
var buckets = []bucket{
	{net: "P_13_1", vat: "P_14_1", codes: []string{"23", "22"}},
	{net: "P_13_2", vat: "P_14_2", codes: []string{"8", "7"}},
	{net: "P_13_3", vat: "P_14_3", codes: []string{"5"}},
	{net: "P_13_4", vat: "P_14_4"},
	{net: "P_13_6_1", codes: []string{"0"}},
	{net: "P_13_7", codes: []string{"zw"}},
	{net: "P_13_8", codes: []string{"np"}},
	{net: "P_13_10", codes: []string{"oo"}},
}

// otherRates collects any numeric rate not listed above
const otherRates = "P_13_4"

type total struct {
	net decimal.Decimal
	vat decimal.Decimal
}

func bucketFor(rate string) string {
	for _, b := range buckets {
		for _, c := range b.codes {
			if c == rate {
				return b.net
			}
		}
	}
	if _, err := decimal.NewFromString(rate); err == nil {
		return otherRates
	}
	return "P_13_8"
}

func bucketTotals(lines []line) map[string]total {
	out := make(map[string]total)
	for _, l := range lines {
		key := bucketFor(l.rate)
		t := out[key]
		t.net = t.net.Add(l.net)
		t.vat = t.vat.Add(l.vat)
		out[key] = t
	}
	return out
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
