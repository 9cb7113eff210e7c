package outbox

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu        sync.Mutex
	topics    []string
	failTopic string
}

func (s *recordingSink) Deliver(_ context.Context, topic string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTopic != "" && topic == s.failTopic {
		return errors.New("downstream broken")
	}
	s.topics = append(s.topics, topic)
	return nil
}

func openTestPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	var exists bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'outbox')`,
	).Scan(&exists); err != nil || !exists {
		t.Skip("database schema missing; apply migrations first")
	}
	return pool
}

func TestDispatcher_DeliversPending(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := openTestPool(t, ctx)

	topic := "test.delivery." + time.Now().Format("150405.000000000")
	var id string
	if err := pool.QueryRow(ctx,
		`INSERT INTO outbox (topic, payload) VALUES ($1, '{"k":"v"}'::jsonb) RETURNING id`, topic,
	).Scan(&id); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM outbox WHERE id = $1`, id)
	})

	sink := &recordingSink{}
	d := NewDispatcher(pool, sink, zap.NewNop().Sugar())
	if err := d.drain(ctx, 2); err != nil {
		t.Fatalf("drain: %v", err)
	}

	var status string
	if err := pool.QueryRow(ctx, `SELECT status FROM outbox WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "processed" {
		t.Fatalf("expected processed, got %q", status)
	}

	found := false
	for _, got := range sink.topics {
		if got == topic {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected topic %q delivered, got %v", topic, sink.topics)
	}
}

func TestDispatcher_FailedDeliveryGoesDead(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := openTestPool(t, ctx)

	topic := "test.dead." + time.Now().Format("150405.000000000")
	var id string
	if err := pool.QueryRow(ctx,
		`INSERT INTO outbox (topic, payload) VALUES ($1, '{}'::jsonb) RETURNING id`, topic,
	).Scan(&id); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM outbox WHERE id = $1`, id)
	})

	sink := &recordingSink{failTopic: topic}
	d := NewDispatcher(pool, sink, zap.NewNop().Sugar())
	d.maxAttempts = 2

	// drain keeps claiming until nothing is pending, so one call walks the
	// message through its whole attempt budget.
	if err := d.drain(ctx, 1); err != nil {
		t.Fatalf("drain: %v", err)
	}

	var status string
	var attempts int
	if err := pool.QueryRow(ctx, `SELECT status, attempts FROM outbox WHERE id = $1`, id).Scan(&status, &attempts); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "dead" {
		t.Fatalf("expected dead after %d attempts, got %q (attempts=%d)", d.maxAttempts, status, attempts)
	}
}
