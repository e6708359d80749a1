package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go-v2/service/budgets"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/costsource"
	"github.com/spf13/cobra"
)

var nativeCmd = &cobra.Command{
	Use:   "native",
	Short: "Inspect AWS native budgets",
}

var nativeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List AWS Budgets in the account",
	RunE:  runNativeList,
}

var nativeHistoryCmd = &cobra.Command{
	Use:   "history <budget-name>",
	Short: "Show the performance history of an AWS budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runNativeHistory,
}

func init() {
	rootCmd.AddCommand(nativeCmd)
	nativeCmd.AddCommand(nativeListCmd, nativeHistoryCmd)

	nativeHistoryCmd.Flags().IntP("months", "m", 12, "Number of months of history")
	nativeHistoryCmd.Flags().Bool("json", false, "Print the history as JSON")
}

// nativeSource builds the AWS Budgets source regardless of native_budgets.enabled.
func nativeSource(cmd *cobra.Command) (costsource.NativeBudgetSource, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	awsCfg, err := loadAWS(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	return costsource.NewAWSBudgets(budgets.NewFromConfig(awsCfg), sts.NewFromConfig(awsCfg), cfg.AWS.AccountID, newLogger(cfg)), nil
}

func runNativeList(cmd *cobra.Command, _ []string) error {
	src, err := nativeSource(cmd)
	if err != nil {
		return err
	}

	list, err := src.ListBudgets(cmd.Context())
	if err != nil {
		return fmt.Errorf("list native budgets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No AWS budgets found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tTYPE\tPERIOD\tLIMIT\tACTUAL\tFORECAST\tSERVICES\n")
	for _, b := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f %s\t%.2f\t%.2f\t%s\n",
			b.Name, b.BudgetType, b.TimeUnit, b.Limit, b.Currency, b.ActualSpend, b.ForecastedSpend,
			orAll(strings.Join(b.CostFilters["Service"], ",")),
		)
	}
	return w.Flush()
}

func runNativeHistory(cmd *cobra.Command, args []string) error {
	months, _ := cmd.Flags().GetInt("months")
	asJSON, _ := cmd.Flags().GetBool("json")

	src, err := nativeSource(cmd)
	if err != nil {
		return err
	}

	history, err := src.PerformanceHistory(cmd.Context(), args[0], months)
	if err != nil {
		return fmt.Errorf("budget history: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}
	return printHistory(cmd.OutOrStdout(), history)
}

func printHistory(out io.Writer, h *costsource.BudgetHistory) error {
	fmt.Fprintf(out, "=== %s (%s, %s) ===\n", h.BudgetName, h.BudgetType, h.TimeUnit)
	if len(h.Periods) == 0 {
		fmt.Fprintln(out, "No history recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PERIOD\tBUDGETED\tACTUAL\tUSAGE\n")
	for _, p := range h.Periods {
		fmt.Fprintf(w, "%s\t%.2f %s\t%.2f %s\t%.1f%%\n",
			p.Start.Format("2006-01"), p.Budgeted, p.Unit, p.Actual, p.Unit, p.Utilization,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if s := h.Summary; s != nil {
		fmt.Fprintf(out, "\nTotal budgeted:     %.2f\n", s.TotalBudgeted)
		fmt.Fprintf(out, "Total actual:       %.2f\n", s.TotalActual)
		fmt.Fprintf(out, "Average usage:      %.1f%%\n", s.AverageUtilization)
		fmt.Fprintf(out, "Max / min usage:    %.1f%% / %.1f%%\n", s.MaxUtilization, s.MinUtilization)
		fmt.Fprintf(out, "Periods over budget: %d of %d (%.1f%%)\n", s.PeriodsOverBudget, s.TotalPeriods, s.OverBudgetPercentage)
	}
	return nil
}
