package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/billing-killswitch/internal/app"
	"github.com/ogulcanaydogan/billing-killswitch/internal/config"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/billing"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "killswitch",
	Short: "Billing Killswitch - disable project billing once a budget is exceeded",
	Long: `Billing Killswitch consumes Cloud Billing budget notifications and disables
billing on the project a budget belongs to once its cost exceeds the budget.
It runs as a Pub/Sub push endpoint, handles single events from the command line,
and manages the budget to project mapping.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./killswitch.yaml or ~/.killswitch/killswitch.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// initApp wires a handler that talks to the real billing API with
// application default credentials.
func initApp(cfg *config.Config) (*app.App, error) {
	logger := app.NewLogger(cfg, os.Stderr)
	return app.New(cfg, billing.NewDefaultConnector(), logger)
}
