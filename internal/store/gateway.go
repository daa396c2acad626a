// Package store implements the Store Gateway: the only component that
// speaks to the persistent store. It renders typed composite filters to
// SQL against PostgreSQL and exposes a uniform read/write surface that
// entity-specific repositories build on.
//
// Grounded on the teacher's internal/db/database.go (database/sql +
// lib/pq, explicit config validation, connection-pool tuning) generalized
// from one-struct-per-table hand code into a single filter-rendering
// gateway plus a generic Repository[T] per entity.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"nanocld/internal/apperrors"
	"nanocld/internal/logger"
)

// Config holds PostgreSQL connection parameters.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

var (
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-.]{0,253}[a-zA-Z0-9])?$`)
	identRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func validateConfig(c Config) error {
	if c.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(c.Host) == nil && !hostnameRegex.MatchString(c.Host) {
		return fmt.Errorf("invalid database host: %s", c.Host)
	}
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s", c.Port)
	}
	if !identRegex.MatchString(c.User) {
		return fmt.Errorf("invalid database user: %s", c.User)
	}
	if !identRegex.MatchString(c.DBName) {
		return fmt.Errorf("invalid database name: %s", c.DBName)
	}
	return nil
}

// Gateway is the only component permitted to talk to the store.
type Gateway struct {
	db *sql.DB
}

// Open validates the config, opens a pooled connection, and pings it.
func Open(cfg Config) (*Gateway, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	if cfg.SSLMode == "disable" {
		logger.Store().Warn().Msg("database SSL disabled; use sslmode=require in production")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Gateway{db: db}, nil
}

// OpenWithDB wraps an already-open *sql.DB in a Gateway, bypassing config
// validation and pooling setup. Used by tests to inject a sqlmock DB.
func OpenWithDB(db *sql.DB) (*Gateway, error) {
	return &Gateway{db: db}, nil
}

// DB exposes the underlying pool for entity repositories that need to
// issue hand-written SQL outside the generic Repository[T] surface.
func (g *Gateway) DB() *sql.DB { return g.db }

func (g *Gateway) Close() error { return g.db.Close() }

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which is re-raised after rollback).
func (g *Gateway) WithTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Internal("failed to start transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperrors.Internal("failed to commit transaction", err)
	}
	return nil
}

// RenderWhere renders a Filter's Where clauses against a Table's column
// map into a SQL WHERE clause (without the "WHERE" keyword) plus its
// positional arguments, starting at $argOffset+1.
func RenderWhere(table Table, f *Filter, argOffset int) (string, []interface{}, error) {
	if f == nil || len(f.Wheres) == 0 {
		return "", nil, nil
	}
	cols := table.Columns()
	clause := ""
	var args []interface{}
	n := argOffset
	for i, w := range f.Wheres {
		col, ok := cols[w.Column]
		if !ok {
			return "", nil, apperrors.BadInput("unknown filter column %q", w.Column)
		}
		expr := renderColumn(col, w.JSONPath)
		if i > 0 {
			clause += " AND "
		}
		switch w.Predicate {
		case Eq:
			n++
			clause += fmt.Sprintf("%s = $%d", expr, n)
			args = append(args, w.Value)
		case Ne:
			n++
			clause += fmt.Sprintf("%s != $%d", expr, n)
			args = append(args, w.Value)
		case Gt:
			n++
			clause += fmt.Sprintf("%s > $%d", expr, n)
			args = append(args, w.Value)
		case Lt:
			n++
			clause += fmt.Sprintf("%s < $%d", expr, n)
			args = append(args, w.Value)
		case Gte:
			n++
			clause += fmt.Sprintf("%s >= $%d", expr, n)
			args = append(args, w.Value)
		case Lte:
			n++
			clause += fmt.Sprintf("%s <= $%d", expr, n)
			args = append(args, w.Value)
		case Like:
			n++
			clause += fmt.Sprintf("%s LIKE $%d", expr, n)
			args = append(args, w.Value)
		case NotLike:
			n++
			clause += fmt.Sprintf("%s NOT LIKE $%d", expr, n)
			args = append(args, w.Value)
		case In:
			n++
			clause += fmt.Sprintf("%s = ANY($%d)", expr, n)
			args = append(args, w.Value)
		case NotIn:
			n++
			clause += fmt.Sprintf("%s != ALL($%d)", expr, n)
			args = append(args, w.Value)
		case HasKey:
			n++
			base := col.SQLPath
			clause += fmt.Sprintf("%s ? $%d", base, n)
			args = append(args, w.Value)
		case Contains:
			n++
			base := col.SQLPath
			clause += fmt.Sprintf("%s @> $%d::jsonb", base, n)
			args = append(args, w.Value)
		default:
			return "", nil, apperrors.BadInput("unknown predicate %q", w.Predicate)
		}
	}
	return clause, args, nil
}

// RenderTail renders "ORDER BY ... LIMIT ... OFFSET ..." for a filter,
// defaulting order to created_at DESC and limit to 100.
func RenderTail(table Table, f *Filter) string {
	order := "created_at"
	desc := true
	limit := 100
	offset := 0
	if f != nil {
		if f.OrderBy != "" {
			if col, ok := table.Columns()[f.OrderBy]; ok {
				order = col.SQLPath
				desc = f.Desc
			}
		}
		if f.Limit > 0 {
			limit = f.Limit
		}
		offset = f.Offset
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s LIMIT %d OFFSET %d", order, dir, limit, offset)
}
