// Package scheduler wires the refresh engine to its cadence. It owns:
// - the periodic full-universe refresh pass
// - nightly pruning of the local quote archive and the MongoDB mirror
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"fintrack_backend/services"
)

// ArchiveRetention is how long quote snapshots are kept before the nightly
// prune removes them.
const ArchiveRetention = 90 * 24 * time.Hour

// Scheduler manages the background jobs of the sync engine.
type Scheduler struct {
	cron      *gocron.Scheduler
	refresher *services.RefreshScheduler
	archive   *services.QuoteArchive
	mongoSync *services.MongoQuoteSync
	interval  time.Duration
	ctx       context.Context
}

// NewScheduler creates a scheduler driving the given refresher. ctx is the
// process lifetime context; cancellation stops in-flight passes.
func NewScheduler(ctx context.Context, refresher *services.RefreshScheduler, archive *services.QuoteArchive, mongoSync *services.MongoQuoteSync, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		cron:      gocron.NewScheduler(time.UTC),
		refresher: refresher,
		archive:   archive,
		mongoSync: mongoSync,
		interval:  interval,
		ctx:       ctx,
	}
}

// Start registers all jobs and begins running them. An initial refresh pass
// runs immediately in the background.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Full refresh pass on a fixed cadence. SingletonMode keeps a long pass
	// from overlapping the next tick; RunPass itself also serializes against
	// manually triggered passes.
	s.cron.Every(s.interval).SingletonMode().Do(func() {
		s.runPass()
	})

	// Prune history stores nightly at 01:00 UTC
	s.cron.Every(1).Day().At("01:00").Do(func() {
		s.pruneHistory()
	})

	s.cron.StartAsync()

	go s.runPass()

	log.Printf("Scheduler started, refresh interval %s", s.interval)
}

// Stop stops the scheduler. In-flight passes finish or are abandoned via the
// lifetime context.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) runPass() {
	if err := s.ctx.Err(); err != nil {
		return
	}
	result, err := s.refresher.RunPass(s.ctx)
	if err != nil {
		log.Printf("Scheduled refresh pass failed: %v", err)
		return
	}
	log.Printf("Scheduled refresh pass done: updated=%d failed=%d total=%d",
		result.Updated, result.Failed, result.Total)
}

func (s *Scheduler) pruneHistory() {
	if s.archive != nil {
		if err := s.archive.Prune(ArchiveRetention); err != nil {
			log.Printf("Archive prune failed: %v", err)
		}
	}
	if s.mongoSync != nil {
		if err := s.mongoSync.PruneOlderThan(ArchiveRetention); err != nil {
			log.Printf("MongoDB prune failed: %v", err)
		}
	}
}
