package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/ksef-connector/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
	pendingPolls int
	sandboxToken []string
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Start a local KSeF sandbox",
	Long: `Start an HTTP server implementing the KSeF endpoints the connector uses.

The sandbox performs the real token and document cryptography, so the
connector can be exercised end to end with --base-url pointing at it:
  - GET  /health
  - GET  /security/public-key-certificates
  - POST /auth/challenge/nip/:nip
  - POST /auth/token/generate
  - POST /invoices/send
  - GET  /invoices/status/:ref
  - POST /invoices/download/request

Examples:
  # Accept any token
  ksef-connector sandbox

  # Accept a single token for one NIP
  ksef-connector sandbox --address :8090 --token 1234567890=secret`,
	RunE: runSandbox,
}

func init() {
	rootCmd.AddCommand(sandboxCmd)

	sandboxCmd.Flags().StringVar(&serverAddr, "address", ":8090", "Server listen address")
	sandboxCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	sandboxCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	sandboxCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 30*time.Second, "HTTP write timeout")
	sandboxCmd.Flags().IntVar(&pendingPolls, "pending-polls", 1, "Status queries answered with 150 before the decision")
	sandboxCmd.Flags().StringSliceVar(&sandboxToken, "token", nil, "Accepted token as NIP=TOKEN (repeatable)")
}

func runSandbox(cmd *cobra.Command, args []string) error {
	tokens := make(map[string]string, len(sandboxToken))
	for _, t := range sandboxToken {
		nip, token, ok := strings.Cut(t, "=")
		if !ok || nip == "" || token == "" {
			return fmt.Errorf("invalid --token %q, expected NIP=TOKEN", t)
		}
		tokens[nip] = token
	}

	srv, err := server.NewServer(&server.Config{
		Address:      serverAddr,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		Debug:        serverDebug,
		Tokens:       tokens,
		PendingPolls: pendingPolls,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down sandbox...")
		os.Exit(0)
	}()

	fmt.Printf("Starting KSeF sandbox on %s\n", serverAddr)
	if len(tokens) == 0 {
		fmt.Println("Accepting any authorization token")
	}
	return srv.Run()
}
