// Package objstatus implements the Object Status Store: the
// desired/actual status pair tracked per living object, with
// read-modify-write transitions that always preserve the previous value
// (P2) and never redundantly advance a status to its current value.
package objstatus

import (
	"context"
	"database/sql"
	"time"

	"nanocld/internal/models"
	"nanocld/internal/store"
)

type Table struct{}

func (Table) TableName() string        { return "obj_ps_statuses" }
func (Table) PrimaryKeyColumn() string { return "key" }
func (Table) Columns() map[string]store.Column {
	return map[string]store.Column{
		"key":         {SQLPath: "key", Kind: store.KindText},
		"wanted":      {SQLPath: "wanted", Kind: store.KindText},
		"prev_wanted": {SQLPath: "prev_wanted", Kind: store.KindText},
		"actual":      {SQLPath: "actual", Kind: store.KindText},
		"prev_actual": {SQLPath: "prev_actual", Kind: store.KindText},
		"updated_at":  {SQLPath: "updated_at", Kind: store.KindTime},
	}
}

// Store is the Object Status Store.
type Store struct {
	gw   *store.Gateway
	repo *store.Repository[models.ObjPsStatus]
}

func New(gw *store.Gateway) *Store {
	return &Store{gw: gw, repo: store.NewRepository[models.ObjPsStatus](gw, Table{}, scan)}
}

func scan(row store.RowScanner) (models.ObjPsStatus, error) {
	var s models.ObjPsStatus
	err := row.Scan(&s.Key, &s.Wanted, &s.PrevWanted, &s.Actual, &s.PrevActual, &s.UpdatedAt)
	return s, err
}

// Create inserts the initial status pair for a newly created object.
func (s *Store) Create(ctx context.Context, key string, wanted, actual models.ObjPsStatusValue) error {
	query := `
		INSERT INTO obj_ps_statuses (key, wanted, prev_wanted, actual, prev_actual, updated_at)
		VALUES ($1, $2, $2, $3, $3, $4)
	`
	return s.repo.Create(ctx, query, key, wanted, actual, time.Now())
}

// ReadByPK returns the status pair for key.
func (s *Store) ReadByPK(ctx context.Context, key string) (models.ObjPsStatus, error) {
	return s.repo.ReadByPK(ctx, key)
}

// UpdatePK sets only the columns named in sets, plus updated_at, on the
// status row; the other fields are left as they are.
func (s *Store) UpdatePK(ctx context.Context, key string, sets map[string]interface{}) error {
	sets["updated_at"] = time.Now()
	return s.repo.UpdatePK(ctx, key, sets)
}

// UpdateWanted transitions the desired status, preserving prev_wanted.
// A no-op (returns nil without writing) when newWanted equals the
// current value.
func (s *Store) UpdateWanted(ctx context.Context, key string, newWanted models.ObjPsStatusValue) error {
	return s.transition(ctx, key, func(cur *models.ObjPsStatus) bool {
		if cur.Wanted == newWanted {
			return false
		}
		cur.PrevWanted = cur.Wanted
		cur.Wanted = newWanted
		return true
	})
}

// UpdateActual transitions the actual status, preserving prev_actual.
func (s *Store) UpdateActual(ctx context.Context, key string, newActual models.ObjPsStatusValue) error {
	return s.transition(ctx, key, func(cur *models.ObjPsStatus) bool {
		if cur.Actual == newActual {
			return false
		}
		cur.PrevActual = cur.Actual
		cur.Actual = newActual
		return true
	})
}

// transition runs a SELECT ... FOR UPDATE + conditional UPDATE inside a
// single transaction so concurrent reconciler goroutines cannot race a
// read-modify-write on the same key (row-level locking, per §4.3/§7).
func (s *Store) transition(ctx context.Context, key string, mutate func(*models.ObjPsStatus) bool) error {
	return s.gw.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT key, wanted, prev_wanted, actual, prev_actual, updated_at
			 FROM obj_ps_statuses WHERE key = $1 FOR UPDATE`, key)
		cur, err := scan(row)
		if err != nil {
			return err
		}
		if !mutate(&cur) {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE obj_ps_statuses
			 SET wanted = $1, prev_wanted = $2, actual = $3, prev_actual = $4, updated_at = $5
			 WHERE key = $6`,
			cur.Wanted, cur.PrevWanted, cur.Actual, cur.PrevActual, time.Now(), key)
		return err
	})
}
