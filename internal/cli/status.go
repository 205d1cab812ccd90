package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/billing-killswitch/internal/app"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/billing"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the billing state of every mapped project",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, err := cfg.BudgetMapping()
	if err != nil {
		return fmt.Errorf("budget mapping: %w", err)
	}
	if len(m) == 0 {
		fmt.Println("No budgets mapped.")
		return nil
	}

	client, err := billing.NewDefaultConnector().Connect(cmd.Context())
	if err != nil {
		return err
	}
	inspector := billing.NewInspector(client, app.NewLogger(cfg, os.Stderr))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "BUDGET\tPROJECT\tBILLING\tACCOUNT\n")
	for _, budgetID := range m.BudgetIDs() {
		projectID, _ := m.Resolve(budgetID)
		info, err := inspector.State(cmd.Context(), billing.ProjectName(projectID))
		if err != nil {
			fmt.Fprintf(w, "%s\t%s\tUNKNOWN\t%v\n", budgetID, projectID, err)
			continue
		}

		state := "DISABLED"
		if info.BillingEnabled {
			state = "ENABLED"
		}
		account := info.BillingAccountName
		if account == "" {
			account = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", budgetID, projectID, state, account)
	}
	return w.Flush()
}
