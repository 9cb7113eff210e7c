// Package outbox drains the transactional outbox written by the settlement
// services and hands each notification to a delivery sink. Messages are
// claimed with row locks so multiple dispatchers can run side by side.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink receives notifications pulled off the outbox.
type Sink interface {
	Deliver(ctx context.Context, topic string, payload []byte) error
}

// LogSink writes every notification to the structured log. It is the default
// delivery target; real deployments swap in a broker-backed sink.
type LogSink struct {
	Log *zap.SugaredLogger
}

func (s LogSink) Deliver(_ context.Context, topic string, payload []byte) error {
	s.Log.Infow("notification", "topic", topic, "payload", string(payload))
	return nil
}

type Dispatcher struct {
	pool        *pgxpool.Pool
	sink        Sink
	log         *zap.SugaredLogger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewDispatcher(pool *pgxpool.Pool, sink Sink, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		pool:        pool,
		sink:        sink,
		log:         log,
		interval:    time.Second,
		batchSize:   50,
		maxAttempts: 5,
	}
}

// Run polls the outbox until ctx is cancelled. workers delivery goroutines
// share each claimed batch.
func (d *Dispatcher) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.drain(ctx, workers); err != nil && ctx.Err() == nil {
				d.log.Errorw("outbox drain failed", "err", err)
			}
		}
	}
}

type message struct {
	id      string
	topic   string
	payload []byte
}

func (d *Dispatcher) drain(ctx context.Context, workers int) error {
	for {
		batch, err := d.claim(ctx)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, msg := range batch {
			msg := msg
			g.Go(func() error {
				d.deliver(gctx, msg)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// claim moves a batch of pending messages into in_flight under SKIP LOCKED so
// concurrent dispatchers never double-deliver.
func (d *Dispatcher) claim(ctx context.Context) ([]message, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
SELECT id, topic, payload
FROM outbox
WHERE status = 'pending'
ORDER BY created_at
LIMIT $1
FOR UPDATE SKIP LOCKED
`, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox: select pending: %w", err)
	}

	var batch []message
	for rows.Next() {
		var m message
		if err := rows.Scan(&m.id, &m.topic, &m.payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate: %w", err)
	}
	if len(batch) == 0 {
		return nil, nil
	}

	ids := make([]string, len(batch))
	for i, m := range batch {
		ids[i] = m.id
	}
	if _, err := tx.Exec(ctx, `
UPDATE outbox SET status = 'in_flight', attempts = attempts + 1 WHERE id = ANY($1)
`, ids); err != nil {
		return nil, fmt.Errorf("outbox: mark in_flight: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("outbox: commit claim: %w", err)
	}
	return batch, nil
}

func (d *Dispatcher) deliver(ctx context.Context, m message) {
	if err := d.sink.Deliver(ctx, m.topic, m.payload); err != nil {
		d.log.Warnw("outbox delivery failed", "id", m.id, "topic", m.topic, "err", err)
		d.requeue(ctx, m.id)
		return
	}

	if _, err := d.pool.Exec(ctx, `
UPDATE outbox SET status = 'processed', processed_at = now() WHERE id = $1
`, m.id); err != nil {
		d.log.Errorw("outbox mark processed failed", "id", m.id, "err", err)
	}
}

// requeue returns a failed message to pending, or parks it as dead once the
// attempt budget is spent.
func (d *Dispatcher) requeue(ctx context.Context, id string) {
	if _, err := d.pool.Exec(ctx, `
UPDATE outbox
SET status = CASE WHEN attempts >= $2 THEN 'dead' ELSE 'pending' END
WHERE id = $1
`, id, d.maxAttempts); err != nil {
		d.log.Errorw("outbox requeue failed", "id", id, "err", err)
	}
}
