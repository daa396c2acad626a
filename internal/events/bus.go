// Package events implements the Event Bus: a process-local publish/
// subscribe hub with two subscriber kinds — internal typed subscribers
// consumed by the Reconciler (cooperative delivery: a subscriber that
// cannot accept is dropped, never blocking the bus) and raw subscribers
// that stream line-delimited JSON over HTTP chunked transport, evicted
// by a periodic heartbeat.
//
// Grounded on the teacher's internal/websocket/hub.go Hub/Client
// pattern: a channel-driven run loop owns the subscriber set, all
// mutation goes through register/unregister channels, and slow/dead
// subscribers are evicted rather than allowed to block fanout.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"nanocld/internal/logger"
	"nanocld/internal/models"
	"nanocld/internal/store"
)

const (
	subscriberBuffer  = 256
	rawHeartbeat      = 10 * time.Second
	defaultHistoryTTL = 24 * time.Hour
)

// internalSub is one Reconciler-side subscriber: a buffered channel of
// typed events. Its unsubscribe function is returned by SubscribeInternal.
type internalSub struct {
	ch chan models.Event
}

// rawSub is one HTTP-stream subscriber: a buffered channel of raw
// line-delimited JSON frames. An empty frame is a heartbeat.
type rawSub struct {
	ch chan []byte
}

// Bus is the Event Bus (C4).
type Bus struct {
	table Table

	publish          chan models.Event
	registerInternal chan *internalSub
	unregisterInternal chan *internalSub
	registerRaw      chan *rawSub
	unregisterRaw    chan *rawSub

	internalSubs map[*internalSub]struct{}
	rawSubs      map[*rawSub]struct{}

	repo *store.Repository[models.Event]
	node string
}

// Table is the events table's capability record.
type Table struct{}

func (Table) TableName() string        { return "events" }
func (Table) PrimaryKeyColumn() string { return "key" }
func (Table) Columns() map[string]store.Column {
	return map[string]store.Column{
		"key":                  {SQLPath: "key", Kind: store.KindText},
		"created_at":           {SQLPath: "created_at", Kind: store.KindTime},
		"expires_at":           {SQLPath: "expires_at", Kind: store.KindTime},
		"reporting_node":       {SQLPath: "reporting_node", Kind: store.KindText},
		"reporting_controller": {SQLPath: "reporting_controller", Kind: store.KindText},
		"kind":                 {SQLPath: "kind", Kind: store.KindText},
		"action":               {SQLPath: "action", Kind: store.KindText},
		"reason":               {SQLPath: "reason", Kind: store.KindText},
		"note":                 {SQLPath: "note", Kind: store.KindText},
		"actor":                {SQLPath: "actor", Kind: store.KindJSON},
		"related":              {SQLPath: "related", Kind: store.KindJSON},
		"metadata":             {SQLPath: "metadata", Kind: store.KindJSON},
	}
}

func scanEvent(row store.RowScanner) (models.Event, error) {
	var e models.Event
	var actor, related, metadata []byte
	err := row.Scan(&e.Key, &e.CreatedAt, &e.ExpiresAt, &e.ReportingNode, &e.ReportingController,
		&e.Kind, &e.Action, &e.Reason, &e.Note, &actor, &related, &metadata)
	if err != nil {
		return models.Event{}, err
	}
	if len(actor) > 0 {
		var a models.Actor
		if err := json.Unmarshal(actor, &a); err == nil {
			e.Actor = &a
		}
	}
	if len(related) > 0 {
		json.Unmarshal(related, &e.Related)
	}
	if len(metadata) > 0 {
		json.Unmarshal(metadata, &e.Metadata)
	}
	return e, nil
}

// New builds a Bus backed by gw for history persistence, reporting as
// node in every emitted event.
func New(gw *store.Gateway, node string) *Bus {
	return &Bus{
		publish:            make(chan models.Event, subscriberBuffer),
		registerInternal:   make(chan *internalSub),
		unregisterInternal: make(chan *internalSub),
		registerRaw:        make(chan *rawSub),
		unregisterRaw:      make(chan *rawSub),
		internalSubs:       make(map[*internalSub]struct{}),
		rawSubs:            make(map[*rawSub]struct{}),
		repo:               store.NewRepository[models.Event](gw, Table{}, scanEvent),
		node:               node,
	}
}

// Run drives the bus's fanout loop; call it in its own goroutine.
func (b *Bus) Run(ctx context.Context) {
	heartbeat := time.NewTicker(rawHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-b.registerInternal:
			b.internalSubs[s] = struct{}{}
		case s := <-b.unregisterInternal:
			if _, ok := b.internalSubs[s]; ok {
				delete(b.internalSubs, s)
				close(s.ch)
			}
		case s := <-b.registerRaw:
			b.rawSubs[s] = struct{}{}
		case s := <-b.unregisterRaw:
			if _, ok := b.rawSubs[s]; ok {
				delete(b.rawSubs, s)
				close(s.ch)
			}
		case e := <-b.publish:
			b.fanoutInternal(e)
			line, err := json.Marshal(e)
			if err != nil {
				logger.Event().Error().Err(err).Msg("failed to marshal event for raw subscribers")
				continue
			}
			line = append(line, '\n')
			b.fanoutRaw(line)
		case <-heartbeat.C:
			b.fanoutRaw(nil)
		}
	}
}

// fanoutInternal delivers cooperatively: a subscriber whose buffer is
// full is dropped rather than blocking the bus.
func (b *Bus) fanoutInternal(e models.Event) {
	for s := range b.internalSubs {
		select {
		case s.ch <- e:
		default:
			logger.Event().Warn().Str("event", e.Key).Msg("internal subscriber dropped event, buffer full")
		}
	}
}

func (b *Bus) fanoutRaw(line []byte) {
	dead := make([]*rawSub, 0)
	for s := range b.rawSubs {
		select {
		case s.ch <- line:
		default:
			dead = append(dead, s)
		}
	}
	for _, s := range dead {
		delete(b.rawSubs, s)
		close(s.ch)
	}
}

// Emit appends e to the in-process queue and returns once queued;
// fanout to subscribers happens asynchronously on the Run goroutine.
// Key/CreatedAt/ExpiresAt/ReportingNode/ReportingController are stamped
// if unset so callers only need to supply Kind/Action/Reason/Actor.
func (b *Bus) Emit(ctx context.Context, e models.Event) error {
	if e.Key == "" {
		e.Key = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = e.CreatedAt.Add(defaultHistoryTTL)
	}
	if e.ReportingNode == "" {
		e.ReportingNode = b.node
	}
	if e.ReportingController == "" {
		e.ReportingController = "nanocl.io/core"
	}

	actor, _ := json.Marshal(e.Actor)
	related, _ := json.Marshal(e.Related)
	metadata, _ := json.Marshal(e.Metadata)
	query := `
		INSERT INTO events (key, created_at, expires_at, reporting_node, reporting_controller,
			kind, action, reason, note, actor, related, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if err := b.repo.Create(ctx, query, e.Key, e.CreatedAt, e.ExpiresAt, e.ReportingNode, e.ReportingController,
		e.Kind, e.Action, e.Reason, e.Note, actor, related, metadata); err != nil {
		return err
	}

	select {
	case b.publish <- e:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// SubscribeInternal registers a Reconciler-side subscriber, returning
// the channel to read from and an unsubscribe function.
func (b *Bus) SubscribeInternal() (<-chan models.Event, func()) {
	s := &internalSub{ch: make(chan models.Event, subscriberBuffer)}
	b.registerInternal <- s
	return s.ch, func() { b.unregisterInternal <- s }
}

// SubscribeRaw registers an HTTP-stream subscriber, returning the
// channel of line-delimited JSON frames (nil frame = heartbeat) and an
// unsubscribe function.
func (b *Bus) SubscribeRaw() (<-chan []byte, func()) {
	s := &rawSub{ch: make(chan []byte, subscriberBuffer)}
	b.registerRaw <- s
	return s.ch, func() { b.unregisterRaw <- s }
}

// History returns the persisted event history across all actors, newest
// first, paged by limit and offset.
func (b *Bus) History(ctx context.Context, limit, offset int) ([]models.Event, error) {
	f := store.NewFilter().OrderByDesc("created_at").WithLimit(limit, offset)
	return b.repo.ReadBy(ctx, f)
}

// Purge deletes every event past its ExpiresAt. Scheduled periodically
// via cron.
func (b *Bus) Purge(ctx context.Context) (int64, error) {
	f := store.NewFilter().Where("expires_at", store.Lt, time.Now())
	return b.repo.DeleteBy(ctx, f)
}

// SchedulePurge registers Purge on c to run hourly, logging failures.
func SchedulePurge(c *cron.Cron, b *Bus) error {
	_, err := c.AddFunc("@hourly", func() {
		n, err := b.Purge(context.Background())
		if err != nil {
			logger.Event().Error().Err(err).Msg("event history purge failed")
			return
		}
		if n > 0 {
			logger.Event().Info().Int64("count", n).Msg("purged expired events")
		}
	})
	return err
}
