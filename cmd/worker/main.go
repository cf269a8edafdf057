package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"liveclass/internal/attendance"
	"liveclass/internal/config"
	"liveclass/internal/live"
	"liveclass/internal/queue"
	"liveclass/internal/store"
	"liveclass/internal/student"
)

// Worker consumes ledger events for audit logging and runs the finalization
// sweep: once a live's window has passed, its active flag is cleared and the
// final attendance summary is snapshotted to redis for the reporting side.
// Absence stays absence-of-record; the sweep never mutates the ledger.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down worker")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	liveStore := live.NewRepository(db.Client, attendance.CascadeForLive)
	studentStore := student.NewRepository(db.Client, attendance.CascadeForStudent)
	recordStore := attendance.NewRepository(db.Client)
	reports := attendance.NewReports(recordStore, studentStore, liveStore, cfg.OnlineWindow)

	q := queue.NewRedisQueue(redisClient.Client, "")
	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume failed: %v", err)
	}

	go consumeEvents(ctx, msgs)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	log.Printf("worker started, sweep every %s", cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			log.Println("worker exited")
			return
		case <-ticker.C:
			sweep(ctx, liveStore, reports, redisClient)
		}
	}
}

func consumeEvents(ctx context.Context, msgs <-chan queue.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			log.Printf("event %s record=%s student=%s live=%s", msg.Type, msg.RecordID, msg.StudentID, msg.LiveID)
		}
	}
}

// sweep finalizes lives whose window closed while still flagged active.
func sweep(ctx context.Context, lives *live.Repository, reports *attendance.Reports, redisClient *store.Redis) {
	finished, err := lives.ActivePastEnd(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("sweep list failed: %v", err)
		return
	}
	for _, lv := range finished {
		summary, err := reports.Summary(ctx, lv.ID)
		if err != nil {
			log.Printf("sweep summary failed for %s: %v", lv.ID, err)
			continue
		}
		if data, err := json.Marshal(summary); err == nil {
			if err := redisClient.Client.Set(ctx, store.SummaryKey(lv.ID), data, 0).Err(); err != nil {
				log.Printf("sweep snapshot failed for %s: %v", lv.ID, err)
			}
		}
		if err := lives.Deactivate(ctx, lv.ID); err != nil {
			log.Printf("sweep deactivate failed for %s: %v", lv.ID, err)
			continue
		}
		log.Printf("live %q finalized: %d present, %d absent, rate %d%%",
			lv.Slug, summary.PresentCount, summary.AbsentCount, summary.AttendanceRate)
	}
}
