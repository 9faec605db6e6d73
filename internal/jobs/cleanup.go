package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/statusbeacon/bridge-server-go/internal/repository"
)

// CleanupJob periodically removes expired pairing codes, OAuth nonces, and
// admin sessions, and marks lapsed queued commands. Expiry is enforced at
// read time everywhere; this job just keeps the tables from growing.
type CleanupJob struct {
	pairingCodeRepo  repository.PairingCodeRepository
	nonceRepo        repository.OAuthNonceRepository
	commandRepo      repository.CommandRepository
	adminSessionRepo repository.AdminSessionRepository
	interval         time.Duration
	done             chan struct{}
}

func NewCleanupJob(
	pairingCodeRepo repository.PairingCodeRepository,
	nonceRepo repository.OAuthNonceRepository,
	commandRepo repository.CommandRepository,
	adminSessionRepo repository.AdminSessionRepository,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		pairingCodeRepo:  pairingCodeRepo,
		nonceRepo:        nonceRepo,
		commandRepo:      commandRepo,
		adminSessionRepo: adminSessionRepo,
		interval:         interval,
		done:             make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "pairing codes", j.pairingCodeRepo.DeleteExpired)
	j.runCleanup(ctx, "oauth nonces", j.nonceRepo.DeleteExpired)
	j.runCleanup(ctx, "commands", j.commandRepo.MarkExpired)
	j.runCleanup(ctx, "admin sessions", j.adminSessionRepo.DeleteExpired)
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
