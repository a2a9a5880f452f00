package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconciler finalizes visits left behind by a failed store update
type Reconciler interface {
	ReconcilePending(ctx context.Context) (int, error)
}

type WorkerService struct {
	reconciler Reconciler
	interval   time.Duration
}

func NewWorkerService(reconciler Reconciler, interval time.Duration) *WorkerService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &WorkerService{
		reconciler: reconciler,
		interval:   interval,
	}
}

// Start runs a reconcile pass every interval until ctx is cancelled
func (w *WorkerService) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.interval).Msg("Reconcile worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconcile worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconcile pass
func (w *WorkerService) RunOnce(ctx context.Context) int {
	n, err := w.reconciler.ReconcilePending(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Reconcile pass failed")
		return 0
	}
	if n > 0 {
		log.Info().Int("completed", n).Msg("Reconciled visits from ledger receipts")
	}
	return n
}
