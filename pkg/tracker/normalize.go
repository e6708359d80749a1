// Package tracker aggregates budgets, evaluates alert thresholds and runs
// the alert pipeline.
package tracker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
)

// NativeIDPrefix qualifies the IDs of provider-native budgets.
const NativeIDPrefix = "aws:"

// Cost filter keys used by provider-native budgets.
const (
	nativeServiceFilter = "Service"
	nativeTagFilter     = "TagKeyValue"
)

// Normalize converts an ingested budget into the canonical shape. nativeOwner
// becomes the owner of native budgets, which carry no owner of their own.
func Normalize(src model.BudgetSource, nativeOwner string) (model.NormalizedBudget, error) {
	switch {
	case src.Kind == model.SourceCustom && src.Custom != nil:
		return NormalizeCustom(*src.Custom), nil
	case src.Kind == model.SourceNative && src.Native != nil:
		return NormalizeNative(*src.Native, nativeOwner), nil
	default:
		return model.NormalizedBudget{}, fmt.Errorf("%w: budget source kind %d has no payload", model.ErrInvalidInput, src.Kind)
	}
}

// NormalizeCustom converts a stored budget record, filling defaults for
// anything left unset.
func NormalizeCustom(r model.BudgetRecord) model.NormalizedBudget {
	b := model.NormalizedBudget{
		ID:             r.ID,
		Name:           r.Name,
		Type:           model.BudgetTypeCustom,
		Limit:          r.MonthlyLimit,
		Currency:       r.Currency,
		TimeUnit:       r.TimeUnit,
		Services:       append([]string{}, r.Services...),
		Tags:           copyTags(r.Tags),
		AlertThreshold: r.AlertThreshold,
		OwnerUserID:    r.UserID,
	}
	if r.Notifications != nil {
		b.Notifications = *r.Notifications
	} else {
		b.Notifications = model.DefaultNotifications()
	}
	applyDefaults(&b)
	return b
}

// NormalizeNative converts a provider-native budget. Its service and tag cost
// filters become the budget's filters and its actual spend is kept as the
// reported spend.
func NormalizeNative(n model.NativeBudget, owner string) model.NormalizedBudget {
	spend := n.ActualSpend
	b := model.NormalizedBudget{
		ID:            NativeIDPrefix + n.Name,
		Name:          n.Name,
		Type:          model.BudgetTypeNative,
		Limit:         n.Limit,
		Currency:      n.Currency,
		TimeUnit:      n.TimeUnit,
		Services:      append([]string{}, n.CostFilters[nativeServiceFilter]...),
		Tags:          nativeTags(n.CostFilters[nativeTagFilter]),
		Notifications: model.DefaultNotifications(),
		OwnerUserID:   owner,
		ReportedSpend: &spend,
	}
	applyDefaults(&b)
	return b
}

func applyDefaults(b *model.NormalizedBudget) {
	if b.Name == "" {
		b.Name = model.DefaultBudgetName
	}
	if b.Currency == "" {
		b.Currency = model.DefaultCurrency
	}
	if !b.TimeUnit.Valid() {
		b.TimeUnit = model.TimeUnitMonthly
	}
	if b.AlertThreshold < 1 || b.AlertThreshold > 100 {
		b.AlertThreshold = model.DefaultAlertThreshold
	}
	if b.Limit < 0 {
		b.Limit = 0
	}
	if b.Tags == nil {
		b.Tags = map[string][]string{}
	}
}

func copyTags(tags map[string][]string) map[string][]string {
	out := make(map[string][]string, len(tags))
	for k, v := range tags {
		out[k] = append([]string{}, v...)
	}
	return out
}

// nativeTags parses "user:Key$Value" tag filter entries.
func nativeTags(values []string) map[string][]string {
	tags := map[string][]string{}
	for _, v := range values {
		v = strings.TrimPrefix(v, "user:")
		key, value, ok := strings.Cut(v, "$")
		if !ok || key == "" {
			continue
		}
		tags[key] = append(tags[key], value)
	}
	for k := range tags {
		sort.Strings(tags[k])
	}
	return tags
}
