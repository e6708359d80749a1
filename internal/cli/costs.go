package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/costsource"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/tracker"
	"github.com/spf13/cobra"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show account spend by service",
	Long: `Show account spend broken down by AWS service over the last whole months,
with the current month measured against the monthly budget.`,
	RunE: runCosts,
}

func init() {
	rootCmd.AddCommand(costsCmd)
	costsCmd.Flags().IntP("months", "m", 0, "Number of months including the current one (default from config)")
	costsCmd.Flags().Bool("json", false, "Print the report as JSON")
}

func runCosts(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	months, _ := cmd.Flags().GetInt("months")
	if months == 0 {
		months = cfg.CostReport.Months
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	logger := newLogger(cfg)
	awsCfg, err := loadAWS(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	costs := costsource.NewCostExplorer(costexplorer.NewFromConfig(awsCfg), logger)
	reporter := newCostReporter(cfg, costs, newNativeSource(cfg, awsCfg, logger), logger)

	report, err := reporter.CostReport(cmd.Context(), months)
	if err != nil {
		return fmt.Errorf("cost report: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printCostReport(cmd.OutOrStdout(), report)
}

func printCostReport(out io.Writer, r *tracker.CostReport) error {
	fmt.Fprintf(out, "=== Costs %s to %s (%d months) ===\n",
		r.Start.Format("2006-01-02"), r.End.AddDate(0, 0, -1).Format("2006-01-02"), r.Months)
	if len(r.Services) == 0 {
		fmt.Fprintln(out, "No spend recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SERVICE\tTOTAL\tSHARE\n")
	for _, s := range r.Services {
		fmt.Fprintf(w, "%s\t%.2f %s\t%.1f%%\n", s.Service, s.Cost, r.Currency, s.Percentage)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(r.CurrentMonth) > 0 {
		fmt.Fprintln(out, "\nCurrent month:")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "SERVICE\tCOST\n")
		for _, s := range r.CurrentMonth {
			fmt.Fprintf(w, "%s\t%.2f %s\n", s.Service, s.Cost, r.Currency)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "\nTotal cost:           %.2f %s\n", r.TotalCost, r.Currency)
	fmt.Fprintf(out, "Current month:        %.2f %s\n", r.CurrentMonthCost, r.Currency)
	fmt.Fprintf(out, "Daily average:        %.2f\n", r.DailyAverage)
	fmt.Fprintf(out, "Average monthly cost: %.2f\n", r.AverageMonthlyCost)

	if b := r.Budget; b != nil {
		status := string(b.Utilization.Status)
		if b.Name != "" {
			status += " (" + b.Name + ")"
		}
		fmt.Fprintf(out, "Monthly budget:       %.2f from %s, %.1f%% used, %s\n",
			b.Utilization.Limit, b.Source, b.Utilization.Utilization, status)
		fmt.Fprintf(out, "Projected month:      %.2f, %d days remaining\n",
			b.Utilization.ProjectedSpend, b.DaysRemaining)
	}
	return nil
}
