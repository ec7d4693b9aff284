package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/config"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/queue"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/session"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/store"
)

// Worker persists audit events from the queue and periodically retires
// stale active sessions. Session expiry itself is wall-clock at
// validation time; the sweep only keeps reporting tidy.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:audit")
	}

	sessions := session.NewRepository(db.Client)
	go sweepLoop(ctx, sessions, cfg.SweepInterval)

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for audit events...")
	for evt := range events {
		if err := insertAudit(ctx, db.Client, evt); err != nil {
			log.Printf("audit insert failed (%s %s): %v", evt.Action, evt.Subject, err)
		}
	}

	log.Println("worker stopped")
}

func insertAudit(ctx context.Context, db *sql.DB, evt queue.Event) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_events (id, occurred_at, actor, action, subject, code, detail)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''))
	`, uuid.NewString(), evt.OccurredAt, evt.Actor, evt.Action, evt.Subject, evt.Code, evt.Detail)
	return err
}

func sweepLoop(ctx context.Context, sessions *session.Repository, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := sessions.SweepExpired(ctx)
			if err != nil {
				log.Printf("session sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("retired %d expired session(s)", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
