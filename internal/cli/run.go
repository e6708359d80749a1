package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/tracker"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scheduled alert pass over all budgets",
	Long: `Aggregate every active budget, evaluate thresholds and send alerts once,
exactly as the daemon does on each schedule tick.`,
	RunE: runScheduled,
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger an alert run for one user's budgets",
	RunE:  runTrigger,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(triggerCmd)

	runCmd.Flags().Bool("json", false, "Print the run summary as JSON")

	triggerCmd.Flags().StringP("user", "u", "", "User the run is performed for")
	triggerCmd.Flags().StringP("budget", "b", "", "Restrict the run to one budget ID")
	triggerCmd.Flags().Bool("force", false, "Alert regardless of threshold and suppression")
	triggerCmd.Flags().Bool("test", false, "Evaluate without sending notifications")
	triggerCmd.Flags().Bool("json", false, "Print the run summary as JSON")
	_ = triggerCmd.MarkFlagRequired("user")
}

func runScheduled(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := newPipeline(cmd.Context(), cfg, store, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	summary, err := p.processor.RunScheduled(cmd.Context())
	if err != nil {
		return fmt.Errorf("scheduled run: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return printSummary(cmd.OutOrStdout(), summary, asJSON)
}

func runTrigger(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	userID, _ := cmd.Flags().GetString("user")
	budgetID, _ := cmd.Flags().GetString("budget")
	force, _ := cmd.Flags().GetBool("force")
	testMode, _ := cmd.Flags().GetBool("test")
	asJSON, _ := cmd.Flags().GetBool("json")

	req := tracker.ManualRequest{BudgetID: budgetID, ForceAlert: force, TestMode: testMode}
	if err := tracker.ValidateManualRequest(req, userID); err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := newPipeline(cmd.Context(), cfg, store, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	summary, err := p.processor.RunManual(cmd.Context(), req, userID)
	if err != nil {
		return fmt.Errorf("manual run: %w", err)
	}
	return printSummary(cmd.OutOrStdout(), summary, asJSON)
}

func printSummary(out io.Writer, s *model.RunSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(out, "Run %s", s.RunID)
	if s.TestMode {
		fmt.Fprint(out, " (test mode, no notifications sent)")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Budgets processed:  %d\n", s.BudgetsProcessed)
	fmt.Fprintf(out, "  Alerts triggered:   %d\n", s.AlertsTriggered)
	fmt.Fprintf(out, "  Notifications sent: %d (failed %d)\n", s.NotificationsSent, s.NotificationsFailed)
	fmt.Fprintf(out, "  Processing time:    %dms\n", s.ProcessingTimeMs)

	if len(s.Budgets) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "BUDGET\tSPENT\tLIMIT\tUSAGE\tTHRESHOLD\tSTATUS\tALERT\n")
	for _, b := range s.Budgets {
		alert := ""
		if b.AlertTriggered {
			alert = "yes"
		}
		fmt.Fprintf(w, "%s\t$%.2f\t$%.2f\t%.1f%%\t%d%%\t%s\t%s\n",
			b.BudgetName, b.CurrentSpend, b.BudgetLimit, b.CurrentUtilization, b.Threshold, b.Status, alert,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, d := range s.Notifications {
		if d.Status == model.DeliveryFailed {
			fmt.Fprintf(out, "  delivery failed for %s: %s\n", d.BudgetName, d.Error)
		}
	}
	return nil
}
