package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/billing-killswitch/internal/app"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/discovery"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/manifest"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/mapping"
)

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Inspect and generate the budget to project mapping",
}

var mappingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured mapping",
	RunE:  runMappingShow,
}

var mappingDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Build a mapping from the budgets of a billing account",
	Long: `List the budgets of a billing account and print a mapping for every budget
scoped to exactly one project. The output can be used as the value of ` + mapping.EnvVar + `.`,
	RunE: runMappingDiscover,
}

var mappingCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the mapping against the project manifest",
	RunE:  runMappingCheck,
}

func init() {
	rootCmd.AddCommand(mappingCmd)
	mappingCmd.AddCommand(mappingShowCmd)
	mappingCmd.AddCommand(mappingDiscoverCmd)
	mappingCmd.AddCommand(mappingCheckCmd)

	mappingShowCmd.Flags().Bool("json", false, "Print the raw JSON mapping")
	mappingDiscoverCmd.Flags().String("billing-account", "", "Billing account id (default from config)")
	mappingCheckCmd.Flags().StringP("manifest", "m", "", "Project manifest file (default from config)")
}

func runMappingShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, err := cfg.BudgetMapping()
	if err != nil {
		return fmt.Errorf("budget mapping: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		raw, err := m.Marshal()
		if err != nil {
			return err
		}
		fmt.Println(raw)
		return nil
	}

	if len(m) == 0 {
		fmt.Println("No budgets mapped.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "BUDGET\tPROJECT\n")
	for _, budgetID := range m.BudgetIDs() {
		fmt.Fprintf(w, "%s\t%s\n", budgetID, m[budgetID])
	}
	return w.Flush()
}

func runMappingDiscover(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	account, _ := cmd.Flags().GetString("billing-account")
	if account == "" {
		account = cfg.Discovery.BillingAccount
	}
	if account == "" {
		return fmt.Errorf("billing account is required (--billing-account or discovery.billing_account)")
	}

	ctx := cmd.Context()
	budgets, err := discovery.NewBudgetClient(ctx)
	if err != nil {
		return err
	}
	defer budgets.Close()

	projects, err := discovery.NewResourceManager(ctx)
	if err != nil {
		return err
	}

	d := discovery.NewDiscoverer(budgets, projects, app.NewLogger(cfg, os.Stderr))
	m, err := d.Discover(ctx, account)
	if err != nil {
		return fmt.Errorf("discover budgets: %w", err)
	}

	raw, err := m.Marshal()
	if err != nil {
		return err
	}
	fmt.Println(raw)
	return nil
}

func runMappingCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("manifest")
	if path == "" {
		path = cfg.Backup.Manifest
	}

	mf, err := manifest.Load(path)
	if err != nil {
		return err
	}
	m, err := cfg.BudgetMapping()
	if err != nil {
		return fmt.Errorf("budget mapping: %w", err)
	}

	unmapped := mf.Unmapped(m)
	for _, p := range mf.Unknown(m) {
		fmt.Printf("mapped project not in manifest: %s\n", p)
	}
	for _, p := range unmapped {
		fmt.Printf("project without budget mapping: %s\n", p)
	}

	if len(unmapped) > 0 {
		return fmt.Errorf("%d project(s) are not guarded by the killswitch", len(unmapped))
	}
	fmt.Printf("All %d manifest projects are mapped.\n", len(mf.Projects))
	return nil
}
