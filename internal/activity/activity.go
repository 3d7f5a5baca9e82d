// Package activity is a best-effort, write-only analytics event log
// backed by Postgres. It is grounded on the teacher's pgxpool wiring
// (present but unused in the source) — here it is actually exercised
// as the room join/leave/commit/undo/redo event stream. Nothing in
// the core ever reads it back; a failure here is logged and dropped,
// never surfaced to a client.
package activity

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Kind names the events worth recording. Per-point stroke_points and
// stroke_start are deliberately excluded to keep the log from being
// dominated by noise; only committing actions and undo/redo matter
// for analytics.
type Kind string

const (
	KindJoin   Kind = "join"
	KindLeave  Kind = "leave"
	KindCommit Kind = "commit"
	KindUndo   Kind = "undo"
	KindRedo   Kind = "redo"
)

// Event is one row of the activity log.
type Event struct {
	RoomID   string
	UserID   string
	Kind     Kind
	StrokeID string
	Seq      uint64
	At       time.Time
}

// queueDepth bounds how much backlog the background writer tolerates
// before newer events start getting dropped.
const queueDepth = 256

// Log is a Postgres-backed activity writer. Construct with New;
// Enqueue is safe to call from the room's serialization domain since
// it never blocks.
type Log struct {
	pool   *pgxpool.Pool
	events chan Event
	logger zerolog.Logger
	done   chan struct{}
}

// New connects to dsn, ensures the activity_events table exists, and
// starts the background writer goroutine. Callers should Close on
// shutdown to flush and release the pool.
func New(ctx context.Context, dsn string, logger zerolog.Logger) (*Log, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	const ddl = `CREATE TABLE IF NOT EXISTS activity_events (
		id BIGSERIAL PRIMARY KEY,
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		stroke_id TEXT NOT NULL DEFAULT '',
		seq BIGINT NOT NULL DEFAULT 0,
		at TIMESTAMPTZ NOT NULL
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, err
	}

	l := &Log{
		pool:   pool,
		events: make(chan Event, queueDepth),
		logger: logger,
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Enqueue records ev without blocking. If the writer's backlog is
// full the event is dropped and a warning is logged — matching the
// "logged, does not fail the op" policy for side-channel writes.
func (l *Log) Enqueue(ev Event) {
	if l == nil {
		return
	}
	select {
	case l.events <- ev:
	default:
		l.logger.Warn().Str("room", ev.RoomID).Str("kind", string(ev.Kind)).Msg("activity log backlog full, event dropped")
	}
}

func (l *Log) run() {
	defer close(l.done)
	for ev := range l.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := l.pool.Exec(ctx,
			`INSERT INTO activity_events (room_id, user_id, kind, stroke_id, seq, at) VALUES ($1,$2,$3,$4,$5,$6)`,
			ev.RoomID, ev.UserID, string(ev.Kind), ev.StrokeID, ev.Seq, ev.At)
		cancel()
		if err != nil {
			l.logger.Warn().Err(err).Str("room", ev.RoomID).Msg("activity log write failed")
		}
	}
}

// Close stops accepting new events, drains the backlog, and closes
// the pool.
func (l *Log) Close() {
	if l == nil {
		return
	}
	close(l.events)
	<-l.done
	l.pool.Close()
}
