// Package queue implements the WTC command queue (spec §4.A): a
// cross-process, SQLite-backed FIFO of typed envelopes used for every
// request between producers (launch UI, sequencer, CGI) and the
// per-device dispatcher workers.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/messagenet/evodispatch/internal/evoerr"
	"github.com/messagenet/evodispatch/internal/metrics"
	"github.com/messagenet/evodispatch/internal/model"
)

// PollDelay is the cooperative delay callers apply after an empty read
// before polling again (spec §4.A, §5).
const PollDelay = 100 * time.Millisecond

// Queue is a process-safe FIFO of envelopes backed by a SQLite table.
// Multiple processes (the supervisor, per-device workers, one-shot CGI
// handlers) may open the same database file concurrently; SQLite's own
// locking serializes writes (spec §5: "the queue is shared across all
// processes; only single-row reads and writes are atomic").
type Queue struct {
	db *sql.DB
}

// Open opens (creating if necessary) the WTC database at path and
// applies pending migrations. Use ":memory:" for tests.
func Open(path string) (*Queue, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", evoerr.ErrDBInit, err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", evoerr.ErrDBInit, err)
	}
	return &Queue{db: db}, nil
}

// Close releases the underlying database handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Write appends an envelope to the queue. Per spec §4.A, a write failure
// is logged and swallowed: writers never block on queue failure.
func (q *Queue) Write(ctx context.Context, env model.Envelope) {
	if env.ID == "" {
		env.ID = gonanoid.Must()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO wtc_commands
			(id, op, command_type, source, destination, originating_pid,
			 hardware_recno, stream_recno, template_recno, sequence, message,
			 return_node, flag, seq_op, message_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		env.ID, env.Op, string(env.CommandType), string(env.Source), string(env.Destination),
		env.OriginatingPID, env.HardwareRecno, env.StreamRecno, env.TemplateRecno,
		env.Sequence, env.Message, env.ReturnNode, env.Flag, env.SeqOp, env.MessageType,
	)
	if err != nil {
		metrics.QueueWritesTotal.WithLabelValues(string(env.CommandType), "error").Inc()
		slog.Error("queue write failed", "error", err, "command_type", env.CommandType)
		return
	}
	metrics.QueueWritesTotal.WithLabelValues(string(env.CommandType), "ok").Inc()
}

// Read returns and removes the oldest envelope matching commandType,
// source, and destination, in a single transaction (spec §4.A: "filtered
// reads by (destination, source) pair"; §3: "a queue envelope is
// consumed by at most one dispatcher worker"). Returns
// evoerr.ErrQueueEmpty if no row matches; callers should apply PollDelay
// before retrying.
func (q *Queue) Read(ctx context.Context, commandType model.CommandType, source, destination model.Role) (model.Envelope, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("%w: %v", evoerr.ErrQueueEmpty, err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, op, command_type, source, destination, originating_pid,
		       hardware_recno, stream_recno, template_recno, sequence, message,
		       return_node, flag, seq_op, message_type
		FROM wtc_commands
		WHERE command_type = ? AND source = ? AND destination = ?
		ORDER BY rowid ASC
		LIMIT 1`,
		string(commandType), string(source), string(destination))

	var env model.Envelope
	var op, flag, seqOp byte
	var cmdType, src, dst string
	err = row.Scan(&env.ID, &op, &cmdType, &src, &dst, &env.OriginatingPID,
		&env.HardwareRecno, &env.StreamRecno, &env.TemplateRecno, &env.Sequence,
		&env.Message, &env.ReturnNode, &flag, &seqOp, &env.MessageType)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.QueueReadsTotal.WithLabelValues(string(commandType), "empty").Inc()
		return model.Envelope{}, evoerr.ErrQueueEmpty
	}
	if err != nil {
		metrics.QueueReadsTotal.WithLabelValues(string(commandType), "error").Inc()
		return model.Envelope{}, fmt.Errorf("%w: %v", evoerr.ErrQueueEmpty, err)
	}
	env.Op = model.Op(op)
	env.CommandType = model.CommandType(cmdType)
	env.Source = model.Role(src)
	env.Destination = model.Role(dst)
	env.Flag = model.Flag(flag)
	env.SeqOp = model.SeqOp(seqOp)

	if _, err := tx.ExecContext(ctx, `DELETE FROM wtc_commands WHERE id = ?`, env.ID); err != nil {
		metrics.QueueReadsTotal.WithLabelValues(string(commandType), "error").Inc()
		return model.Envelope{}, fmt.Errorf("%w: %v", evoerr.ErrQueueEmpty, err)
	}
	if err := tx.Commit(); err != nil {
		metrics.QueueReadsTotal.WithLabelValues(string(commandType), "error").Inc()
		return model.Envelope{}, fmt.Errorf("%w: %v", evoerr.ErrQueueEmpty, err)
	}

	metrics.QueueReadsTotal.WithLabelValues(string(commandType), "ok").Inc()
	return env, nil
}

// DeleteCurrent removes the row by ID. Read already removes the row it
// returns as part of its transaction, so this is a no-op acknowledgment
// for callers that want to be explicit about consuming a sentinel row
// (spec §4.A: "envelopes with flag=1 or flag=2 are sentinels and are
// deleted without further action").
func (q *Queue) DeleteCurrent(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM wtc_commands WHERE id = ?`, id)
	return err
}

// Depth returns the number of pending envelopes.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wtc_commands`).Scan(&n)
	return n, err
}

// PurgeStale deletes every envelope addressed to destination. Used by
// the supervisor at startup to discard rows left by a previous, killed
// process instance (spec §4.I: "optionally purges stale queue rows for
// this node").
func (q *Queue) PurgeStale(ctx context.Context, destination model.Role) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM wtc_commands WHERE destination = ?`, string(destination))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
