package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/billing-killswitch/pkg/event"
)

var handleCmd = &cobra.Command{
	Use:   "handle",
	Short: "Run the killswitch once for a single budget notification",
	Long: `Handle one budget notification, either a Pub/Sub push envelope read from
--file (use - for stdin) or a raw notification given with --data and --budget-id.
Billing is disabled for real if the cost exceeds the budget.`,
	RunE: runHandle,
}

func init() {
	rootCmd.AddCommand(handleCmd)

	handleCmd.Flags().StringP("file", "f", "", "Push envelope JSON file (- for stdin)")
	handleCmd.Flags().StringP("data", "d", "", "Raw notification JSON")
	handleCmd.Flags().StringP("budget-id", "b", "", "Budget id attribute for --data")
	handleCmd.MarkFlagsMutuallyExclusive("file", "data")
	handleCmd.MarkFlagsOneRequired("file", "data")
}

func runHandle(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	msg, err := readMessage(cmd)
	if err != nil {
		return err
	}

	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.InvocationTimeout())
	defer cancel()

	result, err := a.Handler.Handle(ctx, msg)
	if err != nil {
		return fmt.Errorf("handle event: %w", err)
	}

	fmt.Printf("Action:  %s\n", result.Action)
	if result.ProjectID != "" {
		fmt.Printf("Project: %s\n", result.ProjectID)
	}
	fmt.Printf("Result:  %s\n", result.Message)
	return nil
}

func readMessage(cmd *cobra.Command) (*event.Message, error) {
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		data, _ := cmd.Flags().GetString("data")
		budgetID, _ := cmd.Flags().GetString("budget-id")
		return &event.Message{
			Data:       []byte(data),
			Attributes: map[string]string{event.BudgetIDAttribute: budgetID},
			MessageID:  "cli",
		}, nil
	}

	var (
		body []byte
		err  error
	)
	if file == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	env, err := event.DecodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	return &env.Message, nil
}
