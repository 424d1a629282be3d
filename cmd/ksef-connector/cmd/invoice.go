package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rezonia/ksef-connector/internal/poller"
	"github.com/rezonia/ksef-connector/pkg/ksef"
)

var (
	sendWait     bool
	sendPlain    bool
	encodeOutput string
	downloadFrom string
	downloadTo   string
)

var encodeCmd = &cobra.Command{
	Use:   "encode <invoice.yaml>",
	Short: "Render an invoice as FA(2) XML without sending it",
	Long: `Render an invoice file as the XML document KSeF accepts.

The seller is the taxpayer stored by connect. The invoice file is YAML:

  number: FV/1/2024
  issue_date: 2024-03-15
  buyer:
    nip: "5260250274"
    name: Buyer sp. z o.o.
  items:
    - description: Consulting
      net_amount: "100"
      vat_rate: "23"`,
	Args: cobra.ExactArgs(1),
	RunE: runEncode,
}

var sendCmd = &cobra.Command{
	Use:   "send <invoice.yaml>",
	Short: "Submit an invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  runSend,
}

var statusCmd = &cobra.Command{
	Use:   "status <reference-number>",
	Short: "Query the processing status of a submission once",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var pollCmd = &cobra.Command{
	Use:   "poll [<invoice-id> <reference-number>]",
	Short: "Poll submissions until KSeF decides",
	Long: `Poll one submission, or with no arguments every invoice still marked SENT,
backing off between queries until the Service accepts or rejects it.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return errors.New("expected no arguments or <invoice-id> <reference-number>")
		}
		return nil
	},
	RunE: runPoll,
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Request a batch download of issued invoices",
	RunE:  runDownload,
}

func init() {
	rootCmd.AddCommand(encodeCmd, sendCmd, statusCmd, pollCmd, downloadCmd)

	encodeCmd.Flags().StringVarP(&encodeOutput, "output", "o", "", "Write XML to file instead of stdout")
	sendCmd.Flags().BoolVar(&sendWait, "wait", false, "Poll until the invoice is accepted or rejected")
	sendCmd.Flags().BoolVar(&sendPlain, "plain", false, "Send the document base64-encoded without encryption")
	downloadCmd.Flags().StringVar(&downloadFrom, "from", "", "Start of the invoicing date range (RFC 3339)")
	downloadCmd.Flags().StringVar(&downloadTo, "to", "", "End of the invoicing date range (RFC 3339)")
	_ = downloadCmd.MarkFlagRequired("from")
	_ = downloadCmd.MarkFlagRequired("to")
}

// readInvoice loads an invoice from a YAML (or JSON) file
func readInvoice(path string) (ksef.Invoice, error) {
	var inv ksef.Invoice
	data, err := os.ReadFile(path)
	if err != nil {
		return inv, fmt.Errorf("failed to read invoice: %w", err)
	}
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return inv, fmt.Errorf("failed to parse invoice: %w", err)
	}
	if len(inv.Items) == 0 {
		return inv, errors.New("invoice has no items")
	}
	return inv, nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	inv, err := readInvoice(args[0])
	if err != nil {
		return err
	}
	return withConnector(func(conn *ksef.Stack) error {
		ctx, cancel := signalContext()
		defer cancel()
		xml, err := conn.Encode(ctx, inv)
		if err != nil {
			return err
		}
		if encodeOutput != "" {
			return os.WriteFile(encodeOutput, []byte(xml), 0644)
		}
		fmt.Print(xml)
		return nil
	})
}

func runSend(cmd *cobra.Command, args []string) error {
	inv, err := readInvoice(args[0])
	if err != nil {
		return err
	}
	var opts []ksef.OpenOption
	if sendPlain {
		opts = append(opts, ksef.WithPlainPayload())
	}
	return withConnector(func(conn *ksef.Stack) error {
		ctx, cancel := signalContext()
		defer cancel()

		sent, res, err := conn.Send(ctx, inv)
		if err != nil {
			return err
		}
		if err := output(res, [][2]string{
			{"Invoice", sent.ID},
			{"Reference", res.ReferenceNumber},
			{"Code", fmt.Sprint(res.ProcessingCode)},
			{"Description", res.Description},
		}); err != nil {
			return err
		}
		if !sendWait {
			return nil
		}
		if err := conn.Wait(ctx, sent.ID, res.ReferenceNumber); err != nil {
			return err
		}
		return printInvoice(conn, sent.ID)
	}, opts...)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withConnector(func(conn *ksef.Stack) error {
		ctx, cancel := signalContext()
		defer cancel()
		snap, err := conn.Status(ctx, args[0])
		if err != nil {
			return err
		}
		return output(snap, [][2]string{
			{"Reference", args[0]},
			{"Code", fmt.Sprint(snap.ProcessingCode)},
			{"Description", snap.Description},
			{"Decision", statusText(snap.Decision())},
			{"KSeF number", snap.KSeFReferenceNumber},
		})
	})
}

func runPoll(cmd *cobra.Command, args []string) error {
	return withConnector(func(conn *ksef.Stack) error {
		ctx, cancel := signalContext()
		defer cancel()

		if len(args) == 0 {
			return conn.Resume(ctx)
		}
		id, ref := args[0], args[1]
		err := conn.Wait(ctx, id, ref)
		if errors.Is(err, poller.ErrGaveUp) {
			return fmt.Errorf("%s is still being processed, try again later", ref)
		}
		if err != nil {
			return err
		}
		return printInvoice(conn, id)
	})
}

func runDownload(cmd *cobra.Command, args []string) error {
	return withConnector(func(conn *ksef.Stack) error {
		ctx, cancel := signalContext()
		defer cancel()
		res, err := conn.RequestDownload(ctx, downloadFrom, downloadTo)
		if err != nil {
			return err
		}
		return output(res, [][2]string{
			{"Reference", res.ReferenceNumber},
			{"Timestamp", res.Timestamp},
		})
	})
}

func printInvoice(conn *ksef.Stack, id string) error {
	ctx, cancel := signalContext()
	defer cancel()
	inv, err := conn.Invoice(ctx, id)
	if err != nil {
		return err
	}
	return output(inv, [][2]string{
		{"Invoice", inv.ID},
		{"Number", inv.Number},
		{"Status", statusText(inv.Status)},
		{"Reference", inv.ReferenceNumber},
		{"KSeF number", inv.KSeFNumber},
	})
}
