package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/model"

	_ "modernc.org/sqlite"
)

const defaultListLimit = 100

// SQLite implements the Storage interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Concurrent push deliveries read while one writes.
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

func (s *SQLite) RecordDecision(ctx context.Context, d *model.Decision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, message_id, budget_id, project_id, action, cost_amount, budget_amount, message, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.MessageID, d.BudgetID, d.ProjectID, string(d.Action),
		d.CostAmount, d.BudgetAmount, d.Message, d.Error, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *SQLite) ListDecisions(ctx context.Context, filter model.DecisionFilter) ([]model.Decision, error) {
	query := `SELECT id, message_id, budget_id, project_id, action, cost_amount, budget_amount, message, error, timestamp
		FROM decisions`
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []model.Decision
	for rows.Next() {
		var d model.Decision
		var action string
		if err := rows.Scan(&d.ID, &d.MessageID, &d.BudgetID, &d.ProjectID, &action,
			&d.CostAmount, &d.BudgetAmount, &d.Message, &d.Error, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		d.Action = model.Action(action)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// buildWhereClause constructs a SQL WHERE clause from a DecisionFilter.
func buildWhereClause(filter model.DecisionFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.BudgetID != "" {
		conditions = append(conditions, "budget_id = ?")
		args = append(args, filter.BudgetID)
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(filter.Action))
	}

	return strings.Join(conditions, " AND "), args
}
