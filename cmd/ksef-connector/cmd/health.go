package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rezonia/ksef-connector/pkg/ksef"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the KSeF Service is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnector(func(conn *ksef.Stack) error {
			ctx, cancel := signalContext()
			defer cancel()
			env := conn.Environment()
			if err := conn.Health(ctx); err != nil {
				return fmt.Errorf("%s (%s) is unreachable: %w", env.Name, env.BaseURL, err)
			}
			fmt.Printf("%s (%s) is up\n", env.Name, env.BaseURL)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
