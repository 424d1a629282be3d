package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/rezonia/ksef-connector/pkg/ksef"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

// printJSON writes v as indented JSON to stdout
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printTable writes key/value rows aligned in two columns
func printTable(w io.Writer, rows [][2]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

// output prints v as JSON or the given rows as a table, depending on --format
func output(v any, rows [][2]string) error {
	if outputFormat == "json" {
		return printJSON(v)
	}
	return printTable(os.Stdout, rows)
}

func yesNo(b bool) string {
	if b {
		return green.Sprint("yes")
	}
	return "no"
}

// statusText colors an invoice status by outcome
func statusText(s ksef.InvoiceStatus) string {
	switch s {
	case ksef.StatusAccepted:
		return green.Sprint(s)
	case ksef.StatusRejected:
		return red.Sprint(s)
	case ksef.StatusSent:
		return yellow.Sprint(s)
	default:
		return string(s)
	}
}
