package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements the Storage interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

const budgetColumns = `b.id, b.user_id, b.name, b.monthly_limit, b.currency, b.time_unit,
	b.alert_threshold, b.alert_frequency, b.is_active, b.services, b.tags, b.notifications,
	b.total_spent_this_month, b.projected_monthly_spend, b.created_at, b.updated_at,
	a.last_alert_sent_ns, a.last_alert_type`

const budgetFrom = ` FROM budgets b LEFT JOIN alert_state a ON a.budget_id = b.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBudget(row rowScanner) (*model.BudgetRecord, error) {
	var (
		b             model.BudgetRecord
		services      string
		tags          string
		notifications sql.NullString
		lastSentNs    sql.NullInt64
		lastType      sql.NullString
	)
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.MonthlyLimit, &b.Currency, &b.TimeUnit,
		&b.AlertThreshold, &b.AlertFrequency, &b.IsActive, &services, &tags, &notifications,
		&b.TotalSpentThisMonth, &b.ProjectedMonthlySpend, &b.CreatedAt, &b.UpdatedAt,
		&lastSentNs, &lastType)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(services), &b.Services); err != nil {
		return nil, fmt.Errorf("decode services for budget %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for budget %s: %w", b.ID, err)
	}
	if notifications.Valid && notifications.String != "" {
		var n model.NotificationConfig
		if err := json.Unmarshal([]byte(notifications.String), &n); err != nil {
			return nil, fmt.Errorf("decode notifications for budget %s: %w", b.ID, err)
		}
		b.Notifications = &n
	}
	if lastSentNs.Valid {
		t := time.Unix(0, lastSentNs.Int64).UTC()
		b.LastAlertSent = &t
		b.LastAlertType = model.AlertType(lastType.String)
	}
	return &b, nil
}

func (s *SQLite) queryBudgets(ctx context.Context, where string, args ...any) ([]model.BudgetRecord, error) {
	query := "SELECT " + budgetColumns + budgetFrom
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY b.created_at, b.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []model.BudgetRecord
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget row: %w", err)
		}
		budgets = append(budgets, *b)
	}
	return budgets, rows.Err()
}

func (s *SQLite) ListActiveBudgets(ctx context.Context) ([]model.BudgetRecord, error) {
	budgets, err := s.queryBudgets(ctx, "b.is_active = 1")
	if err != nil {
		return nil, fmt.Errorf("list active budgets: %w", err)
	}
	return budgets, nil
}

func (s *SQLite) ListUserBudgets(ctx context.Context, userID string) ([]model.BudgetRecord, error) {
	budgets, err := s.queryBudgets(ctx, "b.user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets for user %s: %w", userID, err)
	}
	return budgets, nil
}

func (s *SQLite) GetBudget(ctx context.Context, userID, budgetID string) (*model.BudgetRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+budgetColumns+budgetFrom+" WHERE b.id = ? AND b.user_id = ?",
		budgetID, userID)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget %q: %w", budgetID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (s *SQLite) SetBudget(ctx context.Context, budget *model.BudgetRecord) error {
	if err := budget.Validate(); err != nil {
		return err
	}
	budget.ApplyDefaults()
	if budget.ID == "" {
		budget.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = now
	}
	budget.UpdatedAt = now

	services, err := json.Marshal(budget.Services)
	if err != nil {
		return fmt.Errorf("encode services: %w", err)
	}
	tags, err := json.Marshal(budget.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	notifications, err := json.Marshal(budget.Notifications)
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO budgets (id, user_id, name, monthly_limit, currency, time_unit, alert_threshold,
		   alert_frequency, is_active, services, tags, notifications, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   monthly_limit = excluded.monthly_limit,
		   currency = excluded.currency,
		   time_unit = excluded.time_unit,
		   alert_threshold = excluded.alert_threshold,
		   alert_frequency = excluded.alert_frequency,
		   is_active = excluded.is_active,
		   services = excluded.services,
		   tags = excluded.tags,
		   notifications = excluded.notifications,
		   updated_at = excluded.updated_at
		 WHERE budgets.user_id = excluded.user_id`,
		budget.ID, budget.UserID, budget.Name, budget.MonthlyLimit, budget.Currency,
		string(budget.TimeUnit), budget.AlertThreshold, budget.AlertFrequency, budget.IsActive,
		string(services), string(tags), string(notifications), budget.CreatedAt, budget.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("budget %q: %w", budget.ID, model.ErrNotFound)
	}
	return nil
}

func (s *SQLite) DeleteBudget(ctx context.Context, userID, budgetID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete budget: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM budgets WHERE id = ? AND user_id = ?`, budgetID, userID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("budget %q: %w", budgetID, model.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_state WHERE budget_id = ?`, budgetID); err != nil {
		return fmt.Errorf("delete alert state: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) GetLastAlertSent(ctx context.Context, budgetID string) (*time.Time, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_alert_sent_ns FROM alert_state WHERE budget_id = ?`, budgetID,
	).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last alert: %w", err)
	}
	t := time.Unix(0, ns).UTC()
	return &t, nil
}

func (s *SQLite) RecordAlertSent(ctx context.Context, budgetID string, alertType model.AlertType, at time.Time, prev *time.Time) error {
	now := time.Now().UTC()

	var (
		result sql.Result
		err    error
	)
	if prev == nil {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO alert_state (budget_id, last_alert_sent_ns, last_alert_type, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(budget_id) DO NOTHING`,
			budgetID, at.UnixNano(), string(alertType), now,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE alert_state SET last_alert_sent_ns = ?, last_alert_type = ?, updated_at = ?
			 WHERE budget_id = ? AND last_alert_sent_ns = ?`,
			at.UnixNano(), string(alertType), now, budgetID, prev.UnixNano(),
		)
	}
	if err != nil {
		return fmt.Errorf("record alert sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("budget %q alert state changed concurrently: %w", budgetID, model.ErrConflict)
	}
	return nil
}

func (s *SQLite) UpdateBudgetSpending(ctx context.Context, budgetID string, spent, projected float64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET total_spent_this_month = ?, projected_monthly_spend = ?, updated_at = ? WHERE id = ?`,
		spent, projected, time.Now().UTC(), budgetID,
	)
	if err != nil {
		return fmt.Errorf("update budget spending: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("budget %q: %w", budgetID, model.ErrNotFound)
	}
	return nil
}

func (s *SQLite) CreateUser(ctx context.Context, user *model.User) error {
	if !strings.Contains(user.Email, "@") {
		return fmt.Errorf("%w: invalid email address %q", model.ErrInvalidInput, user.Email)
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
		user.IsActive = true
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   email = excluded.email,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   is_active = excluded.is_active,
		   updated_at = excluded.updated_at`,
		user.ID, user.Email, user.FirstName, user.LastName, user.IsActive, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLite) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, is_active, created_at, updated_at
		 FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", userID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
