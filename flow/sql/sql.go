// Package sql connects flows to database/sql: queries as sources, per-item
// lookups, and statements executed for each item or each batch.
package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
	"github.com/goldentooth/flow-engine/flow/trampoline"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Scanner converts the current row into a value.
type Scanner[T any] func(*sql.Rows) (T, error)

// ExecResult is what a statement reports.
type ExecResult struct {
	LastInsertID int64
	RowsAffected int64
}

func execResult(res sql.Result) ExecResult {
	// Drivers that do not support these report an error; zero is fine.
	lastID, _ := res.LastInsertId()
	affected, _ := res.RowsAffected()
	return ExecResult{LastInsertID: lastID, RowsAffected: affected}
}

// Query runs query on every Emit and streams its rows through scan. A query,
// scan or iteration error ends the stream.
func Query[T any](db Querier, query string, scan Scanner[T], args ...any) flow.Stream[T] {
	if db == nil || scan == nil {
		panic(core.Misconfigured("sql.query", "nil database or scanner"))
	}
	return flow.Create(func(ctx context.Context, emit func(T) bool) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()

		for n := 0; rows.Next(); n++ {
			v, err := scan(rows)
			if err != nil {
				return fmt.Errorf("scan row %d: %w", n, err)
			}
			if !emit(v) {
				return nil
			}
		}
		return rows.Err()
	})
}

// Exec runs a statement on every Emit and emits its result.
func Exec(db Querier, query string, args ...any) flow.Stream[ExecResult] {
	if db == nil {
		panic(core.Misconfigured("sql.exec", "nil database"))
	}
	return flow.Create(func(ctx context.Context, emit func(ExecResult) bool) error {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		emit(execResult(res))
		return nil
	})
}

// Lookup runs query once per item with the arguments bind derives from it
// and emits the scanned rows in item order.
func Lookup[IN, OUT any](db Querier, query string, bind func(IN) []any, scan Scanner[OUT]) flow.Flow[IN, OUT] {
	if bind == nil {
		panic(core.Misconfigured("sql.lookup", "nil binder"))
	}
	return flow.FlatMap(func(v IN) flow.Stream[OUT] {
		return Query(db, query, scan, bind(v)...)
	}).Label("sql_lookup")
}

// ExecEach runs a statement once per item. A failed statement ends the
// stream.
func ExecEach[T any](db Querier, query string, bind func(T) []any) flow.Flow[T, ExecResult] {
	if db == nil || bind == nil {
		panic(core.Misconfigured("sql.exec_each", "nil database or binder"))
	}
	return flow.Lift("sql_exec_each", func() flow.StepFunc[T, ExecResult] {
		return func(ctx context.Context, v T) (trampoline.Bounce[ExecResult], error) {
			res, err := db.ExecContext(ctx, query, bind(v)...)
			if err != nil {
				return trampoline.Halt[ExecResult](), err
			}
			return trampoline.Next(execResult(res)), nil
		}
	})
}

// ExecBatch runs the statement for every item of a batch inside one
// transaction and emits the summed result. A failure rolls the batch back
// and ends the stream.
func ExecBatch[T any](db *sql.DB, query string, bind func(T) []any) flow.Flow[[]T, ExecResult] {
	if db == nil || bind == nil {
		panic(core.Misconfigured("sql.exec_batch", "nil database or binder"))
	}
	return flow.Lift("sql_exec_batch", func() flow.StepFunc[[]T, ExecResult] {
		return func(ctx context.Context, batch []T) (trampoline.Bounce[ExecResult], error) {
			total, err := inTx(ctx, db, func(tx *sql.Tx) (ExecResult, error) {
				stmt, err := tx.PrepareContext(ctx, query)
				if err != nil {
					return ExecResult{}, err
				}
				defer stmt.Close()

				var total ExecResult
				for i, v := range batch {
					res, err := stmt.ExecContext(ctx, bind(v)...)
					if err != nil {
						return ExecResult{}, fmt.Errorf("batch item %d: %w", i, err)
					}
					r := execResult(res)
					total.RowsAffected += r.RowsAffected
					total.LastInsertID = r.LastInsertID
				}
				return total, nil
			})
			if err != nil {
				return trampoline.Halt[ExecResult](), err
			}
			return trampoline.Next(total), nil
		}
	})
}

// Transaction runs fn inside a transaction on every Emit and emits its
// value once committed.
func Transaction[T any](db *sql.DB, fn func(*sql.Tx) (T, error)) flow.Stream[T] {
	if db == nil || fn == nil {
		panic(core.Misconfigured("sql.transaction", "nil database or function"))
	}
	return flow.Create(func(ctx context.Context, emit func(T) bool) error {
		v, err := inTx(ctx, db, fn)
		if err != nil {
			return err
		}
		emit(v)
		return nil
	})
}

func inTx[T any](ctx context.Context, db *sql.DB, fn func(*sql.Tx) (T, error)) (v T, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return v, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if v, err = fn(tx); err != nil {
		return v, err
	}
	if err = tx.Commit(); err != nil {
		return v, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

// ScanMap is a Scanner keyed by column name.
func ScanMap(rows *sql.Rows) (map[string]any, error) {
	cols, values, err := scanAll(rows)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, len(cols))
	for i, col := range cols {
		m[col] = values[i]
	}
	return m, nil
}

// ScanStrings is a Scanner formatting every column as a string. NULL
// becomes "".
func ScanStrings(rows *sql.Rows) ([]string, error) {
	_, values, err := scanAll(rows)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		switch val := v.(type) {
		case nil:
		case []byte:
			out[i] = string(val)
		default:
			out[i] = fmt.Sprint(val)
		}
	}
	return out, nil
}

func scanAll(rows *sql.Rows) ([]string, []any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, nil, err
	}
	return cols, values, nil
}
