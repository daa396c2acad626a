package store

import (
	"context"
	"database/sql"
	"fmt"

	"nanocld/internal/apperrors"
)

// RowScanner abstracts *sql.Row/*sql.Rows so a single scan function works
// for both ReadByPK (single row) and ReadBy (row set).
type RowScanner interface {
	Scan(dest ...interface{}) error
}

// Repository is a generic read/write surface over one Table, parameterized
// by the Go struct T it materializes rows into. Entities supply how to
// scan a row and how to build the INSERT for Create; everything else
// (filter rendering, pagination, pk lookup) is shared.
type Repository[T any] struct {
	gw    *Gateway
	table Table
	scan  func(RowScanner) (T, error)
}

// NewRepository builds a Repository for table, scanning rows with scan.
func NewRepository[T any](gw *Gateway, table Table, scan func(RowScanner) (T, error)) *Repository[T] {
	return &Repository[T]{gw: gw, table: table, scan: scan}
}

// ReadByPK fetches a single row by primary key.
func (r *Repository[T]) ReadByPK(ctx context.Context, pk string) (T, error) {
	var zero T
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", r.table.TableName(), r.table.PrimaryKeyColumn())
	row := r.gw.db.QueryRowContext(ctx, q, pk)
	v, err := r.scan(row)
	if err == sql.ErrNoRows {
		return zero, apperrors.NotFound(r.table.TableName(), pk)
	}
	if err != nil {
		return zero, apperrors.Internal("failed to read row", err)
	}
	return v, nil
}

// ReadOneBy returns the first row matching filter, or a NotFound error.
func (r *Repository[T]) ReadOneBy(ctx context.Context, f *Filter) (T, error) {
	var zero T
	one := NewFilter().WithLimit(1, 0)
	if f != nil {
		one.Wheres = f.Wheres
		one.OrderBy = f.OrderBy
		one.Desc = f.Desc
	}
	rows, err := r.ReadBy(ctx, one)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, apperrors.NotFound(r.table.TableName(), "matching filter")
	}
	return rows[0], nil
}

// ReadBy returns every row matching filter, ordered and paginated per its
// OrderBy/Limit/Offset.
func (r *Repository[T]) ReadBy(ctx context.Context, f *Filter) ([]T, error) {
	where, args, err := RenderWhere(r.table, f, 0)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT * FROM %s", r.table.TableName())
	if where != "" {
		q += " WHERE " + where
	}
	q += RenderTail(r.table, f)
	rows, err := r.gw.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Internal("failed to query rows", err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := r.scan(rows)
		if err != nil {
			return nil, apperrors.Internal("failed to scan row", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("failed reading rows", err)
	}
	return out, nil
}

// CountBy returns the number of rows matching filter, ignoring its
// OrderBy/Limit/Offset.
func (r *Repository[T]) CountBy(ctx context.Context, f *Filter) (int64, error) {
	where, args, err := RenderWhere(r.table, f, 0)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf("SELECT count(*) FROM %s", r.table.TableName())
	if where != "" {
		q += " WHERE " + where
	}
	var n int64
	if err := r.gw.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, apperrors.Internal("failed to count rows", err)
	}
	return n, nil
}

// Create executes an entity-supplied INSERT statement. Entities build
// their own INSERT because column sets and default expressions vary too
// much to generalize safely.
func (r *Repository[T]) Create(ctx context.Context, query string, args ...interface{}) error {
	if _, err := r.gw.db.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Internal("failed to create "+r.table.TableName(), err)
	}
	return nil
}

// UpdatePK sets the given columns on the row identified by pk.
func (r *Repository[T]) UpdatePK(ctx context.Context, pk string, sets map[string]interface{}) error {
	if len(sets) == 0 {
		return nil
	}
	cols := r.table.Columns()
	setClause := ""
	args := make([]interface{}, 0, len(sets)+1)
	i := 0
	for col, val := range sets {
		c, ok := cols[col]
		if !ok {
			return apperrors.BadInput("unknown column %q", col)
		}
		if i > 0 {
			setClause += ", "
		}
		i++
		args = append(args, val)
		setClause += fmt.Sprintf("%s = $%d", c.SQLPath, len(args))
	}
	args = append(args, pk)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		r.table.TableName(), setClause, r.table.PrimaryKeyColumn(), len(args))
	res, err := r.gw.db.ExecContext(ctx, q, args...)
	if err != nil {
		return apperrors.Internal("failed to update "+r.table.TableName(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound(r.table.TableName(), pk)
	}
	return nil
}

// DeleteByPK removes the row identified by pk.
func (r *Repository[T]) DeleteByPK(ctx context.Context, pk string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", r.table.TableName(), r.table.PrimaryKeyColumn())
	res, err := r.gw.db.ExecContext(ctx, q, pk)
	if err != nil {
		return apperrors.Internal("failed to delete "+r.table.TableName(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound(r.table.TableName(), pk)
	}
	return nil
}

// DeleteBy removes every row matching filter and returns the count removed.
func (r *Repository[T]) DeleteBy(ctx context.Context, f *Filter) (int64, error) {
	where, args, err := RenderWhere(r.table, f, 0)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf("DELETE FROM %s", r.table.TableName())
	if where != "" {
		q += " WHERE " + where
	}
	res, err := r.gw.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, apperrors.Internal("failed to delete rows", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
