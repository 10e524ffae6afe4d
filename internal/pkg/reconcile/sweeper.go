package reconcile

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"github.com/NovaForgeApp/NovaForge/app/repository"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/env"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/ledger"
	"github.com/gofiber/fiber/v2/log"
)

// Sweeper is the safety net behind the synchronous compensation path. A
// crash between the usage debit and the refund leaves a reservation with no
// outcome; the sweeper refunds such reservations once they exceed the SLA
// window. It also prunes processed webhook events past the retention window.
type Sweeper struct {
	repos     *repository.Repositories
	ledger    *ledger.Service
	interval  time.Duration
	slaWindow time.Duration
	retention time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewSweeper wires a sweeper with explicit windows.
func NewSweeper(repos *repository.Repositories, ledgerSvc *ledger.Service, interval, slaWindow, retention time.Duration) *Sweeper {
	return &Sweeper{
		repos:     repos,
		ledger:    ledgerSvc,
		interval:  interval,
		slaWindow: slaWindow,
		retention: retention,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// NewSweeperFromEnv builds a sweeper from environment settings.
func NewSweeperFromEnv(repos *repository.Repositories) *Sweeper {
	return NewSweeper(
		repos,
		ledger.NewServiceFromRepositories(repos),
		envDuration("RECONCILE_INTERVAL_SECONDS", 60)*time.Second,
		envDuration("REFUND_SLA_MINUTES", 10)*time.Minute,
		envDuration("WEBHOOK_RETENTION_DAYS", 30)*24*time.Hour,
	)
}

// Start launches the background loop.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop signals the loop and waits for it to drain.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Infof("reconcile sweeper started (interval=%s sla=%s)", s.interval, s.slaWindow)
	for {
		select {
		case <-s.stop:
			log.Info("reconcile sweeper stopped")
			return
		case <-ticker.C:
			if refunded, pruned, err := s.RunOnce(context.Background()); err != nil {
				log.Errorf("reconcile sweep failed: %v", err)
			} else if refunded > 0 || pruned > 0 {
				log.Infof("reconcile sweep: refunded=%d pruned_webhook_events=%d", refunded, pruned)
			}
		}
	}
}

// RunOnce performs a single sweep and reports how many reservations were
// refunded and how many webhook events were pruned.
func (s *Sweeper) RunOnce(ctx context.Context) (int, int64, error) {
	cutoff := time.Now().Add(-s.slaWindow)
	stale, err := s.repos.Transaction.FindUnrefundedUsages(cutoff)
	if err != nil {
		return 0, 0, err
	}

	refunded := 0
	for _, usage := range stale {
		amount := -usage.Amount
		if amount <= 0 {
			continue
		}
		if _, err := s.ledger.Refund(ctx, usage.AccountID, amount, usage.GenerationID); err != nil {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				// The account was deleted after the reservation. There is
				// nothing left to credit; record an outcome so this usage
				// stops matching every future sweep.
				if markErr := s.repos.Generation.Create(&models.Generation{
					GenerationID: usage.GenerationID,
					AccountID:    usage.AccountID,
					Tier:         "",
					Status:       models.GenerationStatusOrphaned,
				}); markErr != nil {
					log.Errorf("failed to mark orphaned reservation %s: %v", usage.GenerationID, markErr)
				} else {
					log.Warnf("reservation %s orphaned by deleted account %d", usage.GenerationID, usage.AccountID)
				}
				continue
			}
			log.Errorf("sweep refund for generation %s failed: %v", usage.GenerationID, err)
			continue
		}
		refunded++
	}

	pruned, err := s.repos.WebhookEvent.PruneOlderThan(time.Now().Add(-s.retention))
	if err != nil {
		return refunded, 0, err
	}
	return refunded, pruned, nil
}

func envDuration(key string, def int64) time.Duration {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return time.Duration(def)
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return time.Duration(def)
	}
	return time.Duration(parsed)
}
