package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_idempotency_sweeps_total",
		Help: "Idempotency key sweeps grouped by result.",
	}, []string{"result"})
	purgedKeysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketing_idempotency_purged_keys_total",
		Help: "Expired idempotency keys removed by the sweeper.",
	})
)

// SweepConfig — параметры очистки просроченных ключей.
type SweepConfig struct {
	Interval time.Duration
	// BatchSize — сколько ключей удаляется одним запросом.
	BatchSize int
	// MaxBatches ограничивает один проход, чтобы не держать базу долго; 0 — без ограничения.
	MaxBatches int
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.MaxBatches < 0 {
		c.MaxBatches = 0
	}
	return c
}

// Sweeper периодически удаляет ключи идемпотентности с истёкшим сроком.
// Брошенные in_flight заявки удаляются наравне с остальными.
type Sweeper struct {
	repo   domain.IdempotencyRepository
	cfg    SweepConfig
	logger *log.Entry
	now    func() time.Time
}

// NewSweeper создаёт Sweeper; нулевые поля cfg заменяются значениями по умолчанию.
func NewSweeper(repo domain.IdempotencyRepository, cfg SweepConfig, logger *log.Entry) *Sweeper {
	if logger == nil {
		logger = log.WithField("component", "idempotency-sweeper")
	}
	return &Sweeper{
		repo:   repo,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run чистит ключи сразу и затем каждые Interval до отмены ctx. Возвращает nil при остановке.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper disabled: no repository")
		return nil
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	purged, err := s.Sweep(ctx, s.now())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		sweepsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).WithField("purged", purged).Warn("idempotency sweep failed")
		return
	}

	sweepsTotal.WithLabelValues("ok").Inc()
	if purged > 0 {
		s.logger.WithField("purged", purged).Info("expired idempotency keys removed")
	}
}

// Sweep удаляет ключи, истёкшие к моменту before, пачками по BatchSize.
// Проход заканчивается на неполной пачке или после MaxBatches пачек.
func (s *Sweeper) Sweep(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for batch := 0; s.cfg.MaxBatches == 0 || batch < s.cfg.MaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := s.repo.Purge(ctx, before, s.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		total += n
		purgedKeysTotal.Add(float64(n))

		if n < s.cfg.BatchSize {
			break
		}
	}
	return total, nil
}
