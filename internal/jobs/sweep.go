package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/service"
)

// SweepJob drives the presence reconciliation loop on a fixed interval.
type SweepJob struct {
	sweeper  *service.Sweeper
	interval time.Duration
	done     chan struct{}
}

func NewSweepJob(sweeper *service.Sweeper, interval time.Duration) *SweepJob {
	return &SweepJob{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("presence sweep job started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("presence sweep job stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	// Bounded well under the interval so overlapping sweeps cannot stack up.
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	j.sweeper.Run(ctx)
}
