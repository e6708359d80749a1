package storage

import (
	"context"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
)

// BudgetStore is the persistence surface the alert pipeline depends on.
type BudgetStore interface {
	// ListActiveBudgets returns every active user-defined budget.
	ListActiveBudgets(ctx context.Context) ([]model.BudgetRecord, error)

	// GetBudget returns the budget with budgetID owned by userID, or model.ErrNotFound.
	GetBudget(ctx context.Context, userID, budgetID string) (*model.BudgetRecord, error)

	// GetLastAlertSent returns when an alert was last recorded for budgetID.
	// A nil time means no alert has been recorded.
	GetLastAlertSent(ctx context.Context, budgetID string) (*time.Time, error)

	// RecordAlertSent stores at as the last alert time for budgetID, but only if
	// the stored value still equals prev. It returns model.ErrConflict otherwise.
	RecordAlertSent(ctx context.Context, budgetID string, alertType model.AlertType, at time.Time, prev *time.Time) error

	// UpdateBudgetSpending stores the latest spend snapshot of a user-defined budget.
	UpdateBudgetSpending(ctx context.Context, budgetID string, spent, projected float64) error
}

// UserDirectory resolves budget owners.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// Storage is the full persistence layer used by the CLI and HTTP API.
type Storage interface {
	BudgetStore
	UserDirectory

	// SetBudget creates or updates a budget.
	SetBudget(ctx context.Context, budget *model.BudgetRecord) error

	// ListUserBudgets returns every budget owned by userID, active or not.
	ListUserBudgets(ctx context.Context, userID string) ([]model.BudgetRecord, error)

	// DeleteBudget removes a budget owned by userID.
	DeleteBudget(ctx context.Context, userID, budgetID string) error

	// CreateUser creates or updates a user.
	CreateUser(ctx context.Context, user *model.User) error

	// Close releases resources.
	Close() error
}
