package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage spending budgets",
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a budget",
	Long: `Create a budget, or update one when --id is given. On update only the
flags that are passed change; everything else keeps its stored value.`,
	RunE: runBudgetSet,
}

var budgetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's budgets",
	RunE:  runBudgetList,
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show spend recorded by the last run",
	RunE:  runBudgetStatus,
}

var budgetDeleteCmd = &cobra.Command{
	Use:   "delete <budget-id>",
	Short: "Delete a budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetDelete,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetSetCmd, budgetListCmd, budgetStatusCmd, budgetDeleteCmd)

	budgetCmd.PersistentFlags().StringP("user", "u", "", "Budget owner")
	_ = budgetCmd.MarkPersistentFlagRequired("user")

	f := budgetSetCmd.Flags()
	f.String("id", "", "Budget ID to update")
	f.StringP("name", "n", "", "Budget name")
	f.Float64P("limit", "l", 0, "Spending limit per period")
	f.String("currency", "", "Currency code (default USD)")
	f.StringP("period", "P", "", "Budget period (MONTHLY, QUARTERLY, ANNUALLY)")
	f.Int("alert-at", 0, "Alert threshold percentage (default 80)")
	f.StringSlice("service", nil, "AWS service to include (repeatable)")
	f.StringArray("tag", nil, "Cost allocation tag filter as key=value (repeatable)")
	f.Bool("email", true, "Send email alerts")
	f.String("email-address", "", "Email address overriding the owner's")
	f.Bool("pubsub", false, "Publish alerts to the pub/sub topic")
	f.String("webhook-url", "", "Chat webhook URL; enables chat alerts")
	f.Bool("active", true, "Whether the budget is evaluated")
}

func runBudgetSet(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	userID, _ := cmd.Flags().GetString("user")

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	budget := &model.BudgetRecord{UserID: userID, IsActive: true}
	if id, _ := cmd.Flags().GetString("id"); id != "" {
		if budget, err = store.GetBudget(cmd.Context(), userID, id); err != nil {
			return fmt.Errorf("load budget: %w", err)
		}
	}
	if err := applyBudgetFlags(cmd, budget); err != nil {
		return err
	}

	if err := store.SetBudget(cmd.Context(), budget); err != nil {
		return fmt.Errorf("set budget: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Budget set:\n")
	fmt.Fprintf(out, "  ID:        %s\n", budget.ID)
	fmt.Fprintf(out, "  Name:      %s\n", budget.Name)
	fmt.Fprintf(out, "  Limit:     %.2f %s\n", budget.MonthlyLimit, budget.Currency)
	fmt.Fprintf(out, "  Period:    %s\n", budget.TimeUnit)
	fmt.Fprintf(out, "  Alert at:  %d%%\n", budget.AlertThreshold)
	if len(budget.Services) > 0 {
		fmt.Fprintf(out, "  Services:  %s\n", strings.Join(budget.Services, ", "))
	}
	return nil
}

// applyBudgetFlags copies the flags that were set onto b.
func applyBudgetFlags(cmd *cobra.Command, b *model.BudgetRecord) error {
	f := cmd.Flags()
	if f.Changed("name") {
		b.Name, _ = f.GetString("name")
	}
	if f.Changed("limit") {
		b.MonthlyLimit, _ = f.GetFloat64("limit")
	}
	if f.Changed("currency") {
		b.Currency, _ = f.GetString("currency")
	}
	if f.Changed("period") {
		period, _ := f.GetString("period")
		b.TimeUnit = model.TimeUnit(strings.ToUpper(period))
	}
	if f.Changed("alert-at") {
		b.AlertThreshold, _ = f.GetInt("alert-at")
	}
	if f.Changed("service") {
		b.Services, _ = f.GetStringSlice("service")
	}
	if f.Changed("tag") {
		raw, _ := f.GetStringArray("tag")
		tags, err := parseTags(raw)
		if err != nil {
			return err
		}
		b.Tags = tags
	}
	if f.Changed("active") {
		b.IsActive, _ = f.GetBool("active")
	}

	if b.Notifications == nil {
		n := model.DefaultNotifications()
		b.Notifications = &n
	}
	n := b.Notifications
	if f.Changed("email") {
		n.Email, _ = f.GetBool("email")
	}
	if f.Changed("email-address") {
		n.EmailAddress, _ = f.GetString("email-address")
	}
	if f.Changed("pubsub") {
		n.PubSub, _ = f.GetBool("pubsub")
	}
	if f.Changed("webhook-url") {
		n.WebhookURL, _ = f.GetString("webhook-url")
		n.Chat = n.WebhookURL != ""
	}
	return nil
}

// parseTags turns key=value pairs into a tag filter. Repeated keys collect
// their values.
func parseTags(pairs []string) (map[string][]string, error) {
	tags := make(map[string][]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: tag %q must be key=value", model.ErrInvalidInput, pair)
		}
		tags[key] = append(tags[key], strings.TrimSpace(value))
	}
	for key := range tags {
		sort.Strings(tags[key])
	}
	return tags, nil
}

func runBudgetList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	userID, _ := cmd.Flags().GetString("user")

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	budgets, err := store.ListUserBudgets(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(budgets) == 0 {
		fmt.Fprintln(out, "No budgets configured. Use 'ccg budget set' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tPERIOD\tLIMIT\tALERT AT\tSERVICES\tCHANNELS\tACTIVE\n")
	for _, b := range budgets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f %s\t%d%%\t%s\t%s\t%t\n",
			b.ID, b.Name, b.TimeUnit, b.MonthlyLimit, b.Currency, b.AlertThreshold,
			orAll(strings.Join(b.Services, ",")), channels(b.Notifications), b.IsActive,
		)
	}
	return w.Flush()
}

func runBudgetStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	userID, _ := cmd.Flags().GetString("user")

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	budgets, err := store.ListUserBudgets(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}
	if len(budgets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No budgets configured. Use 'ccg budget set' to create one.")
		return nil
	}
	return printStatus(cmd.OutOrStdout(), budgets)
}

func printStatus(out io.Writer, budgets []model.BudgetRecord) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tPERIOD\tLIMIT\tSPENT\tREMAINING\tPROJECTED\tUSAGE\tLAST ALERT\n")
	for _, b := range budgets {
		if !b.IsActive {
			continue
		}
		u := model.ComputeUtilization(b.TotalSpentThisMonth, b.MonthlyLimit, b.AlertThreshold)

		status := ""
		switch u.Status {
		case model.StatusExceeded:
			status = " [EXCEEDED]"
		case model.StatusWarning:
			status = " [WARNING]"
		}
		lastAlert := "-"
		if b.LastAlertSent != nil {
			lastAlert = b.LastAlertSent.UTC().Format("2006-01-02 15:04")
		}

		fmt.Fprintf(w, "%s\t%s\t$%.2f\t$%.2f\t$%.2f\t$%.2f\t%.1f%%%s\t%s\n",
			b.Name, b.TimeUnit, u.Limit, u.CurrentSpend, u.RemainingBudget,
			b.ProjectedMonthlySpend, u.Utilization, status, lastAlert,
		)
	}
	return w.Flush()
}

func runBudgetDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	userID, _ := cmd.Flags().GetString("user")

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteBudget(cmd.Context(), userID, args[0]); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Budget %s deleted\n", args[0])
	return nil
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}

func channels(n *model.NotificationConfig) string {
	if n == nil {
		return "email"
	}
	var out []string
	if n.Email {
		out = append(out, "email")
	}
	if n.PubSub {
		out = append(out, "pubsub")
	}
	if n.Chat {
		out = append(out, "chat")
	}
	if len(out) == 0 {
		return "console"
	}
	return strings.Join(out, ",")
}
