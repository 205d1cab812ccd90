package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/billing-killswitch/internal/app"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded killswitch decisions",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("project", "", "Filter by project id")
	historyCmd.Flags().String("budget", "", "Filter by budget id")
	historyCmd.Flags().String("action", "", "Filter by action (no_action, no_project, already_disabled, disabled, failed)")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of decisions")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Storage.Path); os.IsNotExist(err) {
		fmt.Println("No decisions recorded.")
		return nil
	}

	store, err := app.OpenStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	project, _ := cmd.Flags().GetString("project")
	budget, _ := cmd.Flags().GetString("budget")
	action, _ := cmd.Flags().GetString("action")
	limit, _ := cmd.Flags().GetInt("limit")

	decisions, err := store.ListDecisions(cmd.Context(), model.DecisionFilter{
		ProjectID: project,
		BudgetID:  budget,
		Action:    model.Action(action),
		Limit:     limit,
	})
	if err != nil {
		return fmt.Errorf("list decisions: %w", err)
	}

	if len(decisions) == 0 {
		fmt.Println("No decisions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIME\tACTION\tBUDGET\tPROJECT\tCOST\tBUDGET AMOUNT\tERROR\n")
	for _, d := range decisions {
		project := d.ProjectID
		if project == "" {
			project = "-"
		}
		errMsg := d.Error
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Timestamp.Local().Format(time.DateTime),
			d.Action, d.BudgetID, project, d.CostAmount, d.BudgetAmount, errMsg)
	}
	return w.Flush()
}
