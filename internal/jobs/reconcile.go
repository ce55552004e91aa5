package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconciler sweeps expired-but-active sessions. The lifecycle manager
// satisfies it.
type Reconciler interface {
	ReconcileExpired(ctx context.Context) (int, error)
}

// ReconcileJob periodically closes sessions whose end time has passed without
// an explicit close. The ephemeral marker expires on its own; this job is
// what brings the durable active flag back in line with real time.
type ReconcileJob struct {
	reconciler Reconciler
	interval   time.Duration
	done       chan struct{}
}

func NewReconcileJob(reconciler Reconciler, interval time.Duration) *ReconcileJob {
	return &ReconcileJob{
		reconciler: reconciler,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (j *ReconcileJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("reconcile job started")
}

func (j *ReconcileJob) Stop() {
	close(j.done)
	log.Info().Msg("reconcile job stopped")
}

func (j *ReconcileJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *ReconcileJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := j.reconciler.ReconcileExpired(ctx); err != nil {
		log.Error().Err(err).Msg("failed to reconcile expired sessions")
	}
}
