package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rezonia/ksef-connector/internal/config"
	"github.com/rezonia/ksef-connector/internal/logging"
	"github.com/rezonia/ksef-connector/pkg/ksef"
)

var (
	version = "1.0.0"

	// Global flags
	configPath   string
	envName      string
	baseURL      string
	storeBackend string
	stateDir     string
	redisURL     string
	passphrase   string
	verbose      bool
	jsonLogs     bool
	noColor      bool
	outputFormat string

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ksef-connector",
	Short: "Submit invoices to the Polish KSeF e-invoice system",
	Long: `KSeF Connector authorizes a taxpayer against KSeF, submits invoices
and follows them until they are accepted or rejected.

Credentials are kept in an encrypted file (or Redis) between runs.

Examples:
  # Authorize with a long-lived token from the KSeF portal
  ksef-connector connect --nip 1234567890 --token <token> --company "ACME"

  # Render an invoice without sending it
  ksef-connector encode invoice.yaml

  # Send and wait for the decision
  ksef-connector send invoice.yaml --wait

  # Run a local sandbox of the Service
  ksef-connector sandbox --address :8090`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
		logger = logging.New(os.Stderr, logging.Options{
			Verbose: verbose,
			JSON:    jsonLogs,
			NoColor: noColor,
		})
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	flags.StringVar(&envName, "env", "", "KSeF environment: test or production (env: KSEF_ENV)")
	flags.StringVar(&baseURL, "base-url", "", "Override the Service base URL (env: KSEF_BASE_URL)")
	flags.StringVar(&storeBackend, "store", "", "Credential store: memory, file or redis (env: KSEF_STORE)")
	flags.StringVar(&stateDir, "state-dir", "", "Directory of the encrypted credential file (env: KSEF_STATE_DIR)")
	flags.StringVar(&redisURL, "redis-url", "", "Redis URL for the redis store (env: KSEF_REDIS_URL)")
	flags.StringVar(&passphrase, "passphrase", "", "Passphrase of the credential file (env: KSEF_PASSPHRASE)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVar(&jsonLogs, "log-json", false, "Write logs as JSON")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored log output")
	flags.StringVarP(&outputFormat, "format", "f", "table", "Output format (json, table)")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if passphrase == "" {
		passphrase = os.Getenv("KSEF_PASSPHRASE")
	}
}

// loadConfig resolves the config file, environment and flags, in that order,
// and validates the result once
func loadConfig() (*config.Parsed, error) {
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, err
	}

	overrides := map[*string]string{
		&cfg.Environment:    envName,
		&cfg.BaseURL:        baseURL,
		&cfg.Store.Backend:  storeBackend,
		&cfg.Store.StateDir: stateDir,
		&cfg.Store.RedisURL: redisURL,
	}
	for field, v := range overrides {
		if v != "" {
			*field = v
		}
	}
	return cfg.Parse()
}

// openConnector builds the connector described by the global flags
func openConnector(opts ...ksef.OpenOption) (*ksef.Stack, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Store.Backend == config.BackendFile && passphrase == "" {
		return nil, fmt.Errorf("a passphrase is required for the file store (--passphrase or KSEF_PASSPHRASE)")
	}
	logger.Debug().
		Str("environment", cfg.Env.Name).
		Str("base_url", cfg.Env.BaseURL).
		Str("store", cfg.Store.Backend).
		Msg("opening connector")
	return ksef.Open(cfg, passphrase, logger, opts...)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
