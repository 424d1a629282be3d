package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rezonia/ksef-connector/internal/auth"
	"github.com/rezonia/ksef-connector/internal/credentials"
	protocol "github.com/rezonia/ksef-connector/internal/ksef"
	"github.com/rezonia/ksef-connector/pkg/ksef"
)

var (
	connectNIP     string
	connectToken   string
	connectCompany string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Authorize against KSeF with a long-lived token",
	Long: `Run the authorization handshake and store the resulting session.

The long-lived token is generated in the KSeF portal. It is encrypted with
the Service public key together with a fresh challenge and exchanged for a
session token.

Examples:
  ksef-connector connect --nip 1234567890 --token <token> --company "ACME"
  KSEF_TOKEN=<token> ksef-connector connect --nip 1234567890`,
	RunE: runConnect,
}

var disconnectCmd = &cobra.Command{
	Use:     "disconnect",
	Aliases: []string{"logout"},
	Short:   "Drop the session, keeping NIP and token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnector(func(conn *ksef.Stack) error {
			ctx, cancel := signalContext()
			defer cancel()
			if err := conn.Disconnect(ctx); err != nil {
				return err
			}
			fmt.Println("Disconnected")
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnector(func(conn *ksef.Stack) error {
			ctx, cancel := signalContext()
			defer cancel()
			if err := conn.ClearAll(ctx); err != nil {
				return err
			}
			fmt.Println("Credentials cleared")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored taxpayer and session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnector(func(conn *ksef.Stack) error {
			ctx, cancel := signalContext()
			defer cancel()
			creds, err := conn.Credentials(ctx)
			if err != nil {
				return err
			}
			view := struct {
				NIP          string `json:"nip"`
				CompanyName  string `json:"company_name"`
				Connected    bool   `json:"connected"`
				IsProduction bool   `json:"is_production"`
				HasToken     bool   `json:"has_token"`
				Environment  string `json:"environment"`
			}{creds.NIP, creds.CompanyName, creds.HasSession(), creds.IsProduction,
				creds.LongLivedToken != "", conn.Environment().Name}
			return output(view, [][2]string{
				{"NIP", creds.NIP},
				{"Company", creds.CompanyName},
				{"Connected", yesNo(view.Connected)},
				{"Production", yesNo(creds.IsProduction)},
				{"Token stored", yesNo(view.HasToken)},
				{"Environment", view.Environment},
			})
		})
	},
}

var switchEnvCmd = &cobra.Command{
	Use:   "switch-env <test|production>",
	Short: "Drop the session before talking to another environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := protocol.EnvironmentByName(args[0])
		if err != nil {
			return err
		}
		return withConnector(func(conn *ksef.Stack) error {
			ctx, cancel := signalContext()
			defer cancel()
			if _, err := conn.SwitchEnvironment(ctx, env); err != nil {
				return err
			}
			fmt.Printf("Session dropped; run connect with --env %s\n", env.Name)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(connectCmd, disconnectCmd, clearCmd, whoamiCmd, switchEnvCmd)

	connectCmd.Flags().StringVar(&connectNIP, "nip", "", "Taxpayer NIP (10 digits)")
	connectCmd.Flags().StringVar(&connectToken, "token", "", "Long-lived authorization token (env: KSEF_TOKEN)")
	connectCmd.Flags().StringVar(&connectCompany, "company", "", "Company name printed as the seller")
}

func runConnect(cmd *cobra.Command, args []string) error {
	if connectToken == "" {
		connectToken = os.Getenv("KSEF_TOKEN")
	}
	if connectNIP != "" && credentials.ValidateNIP(connectNIP) == nil && !credentials.NIPChecksumValid(connectNIP) {
		logger.Warn().Str("nip", connectNIP).Msg("NIP checksum does not match, continuing anyway")
	}

	return withConnector(func(conn *ksef.Stack) error {
		ctx, cancel := signalContext()
		defer cancel()

		out := conn.ConnectObserved(ctx, connectNIP, connectToken, connectCompany, func(s auth.State) {
			logger.Debug().Str("state", s.String()).Msg("authorization")
		})
		switch o := out.(type) {
		case ksef.Success:
			green.Printf("Connected as %s (%s)\n", connectNIP, conn.Environment().Name)
			return nil
		case ksef.Failure:
			if o.Code != nil {
				return fmt.Errorf("authorization failed (HTTP %s): %s", strconv.Itoa(*o.Code), o.Message)
			}
			return fmt.Errorf("authorization failed: %s", o.Message)
		default:
			return errors.New("authorization did not complete")
		}
	})
}

// withConnector opens the connector for the duration of fn
func withConnector(fn func(conn *ksef.Stack) error, opts ...ksef.OpenOption) error {
	conn, err := openConnector(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close connector")
		}
	}()
	return fn(conn)
}
