package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chatquery/chatquery/internal/domain"
)

// Executor runs a ParameterizedOperation against the relational store inside
// a transaction scoped to that single operation.
type Executor struct {
	db domain.DatabaseService
}

func NewExecutor(db domain.DatabaseService) *Executor {
	return &Executor{db: db}
}

func (ex *Executor) Execute(ctx context.Context, op *domain.ParameterizedOperation) (*domain.Result, error) {
	tx, err := ex.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result := &domain.Result{Entity: op.Entity(), Kind: op.Kind()}

	if op.Kind() == domain.OpRead {
		rows, err := tx.QueryContext(ctx, op.SQL(), op.Args()...)
		if err != nil {
			return nil, mapStoreError(err)
		}
		result.Rows, err = rowsToMaps(rows)
		rows.Close()
		if err != nil {
			return nil, mapStoreError(err)
		}
	} else {
		res, err := tx.ExecContext(ctx, op.SQL(), op.Args()...)
		if err != nil {
			return nil, mapStoreError(err)
		}
		result.Affected, err = res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if result.Affected == 0 && op.Kind() != domain.OpCreate {
			return nil, domain.ErrNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapStoreError(err)
	}
	return result, nil
}

// mapStoreError translates store-level failures into the execution error
// taxonomy without leaking driver details to the user.
func mapStoreError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 23: integrity constraint violations.
		if strings.HasPrefix(pgErr.Code, "23") {
			return fmt.Errorf("%w: %s", domain.ErrConstraintViolation, pgErr.Code)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("database operation failed: %w", err)
}

func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		scans := make([]any, len(cols))
		for i := range vals {
			scans[i] = &vals[i]
		}
		if err := rows.Scan(scans...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FormatResponse renders a deterministic, operation-specific reply.
func FormatResponse(result *domain.Result) string {
	switch result.Kind {
	case domain.OpRead:
		if len(result.Rows) == 0 {
			return fmt.Sprintf("No matching %s found.", result.Entity)
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Found %d %s record(s):\n", len(result.Rows), singular(result.Entity))
		for _, row := range result.Rows {
			sb.WriteString(formatRow(row))
			sb.WriteString("\n")
		}
		return strings.TrimRight(sb.String(), "\n")
	case domain.OpCreate:
		return fmt.Sprintf("Created 1 %s record.", singular(result.Entity))
	case domain.OpUpdate:
		return fmt.Sprintf("Updated %d %s record(s).", result.Affected, singular(result.Entity))
	case domain.OpDelete:
		return fmt.Sprintf("Deleted %d %s record(s).", result.Affected, singular(result.Entity))
	}
	return "Done."
}

func formatRow(row map[string]any) string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%s=%s", c, formatValue(row[c])))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func singular(entity string) string {
	return strings.TrimSuffix(entity, "s")
}
