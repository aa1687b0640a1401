package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

var (
	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_outbox_deliveries_total",
		Help: "Попытки доставки событий заказов из outbox по результату.",
	}, []string{"result"})
	backlogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ticketing_outbox_pending_records",
		Help: "Число неотправленных событий в outbox.",
	})
	backlogAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ticketing_outbox_oldest_pending_age_seconds",
		Help: "Возраст самого старого неотправленного события, в секундах.",
	})
)

// Config задаёт режим работы Worker. Нулевые поля заменяются значениями по умолчанию.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryDelay   time.Duration
	// DeadLetters получает события, которые не удалось доставить; nil отключает DLQ.
	DeadLetters domain.OutboxPublisher
	Logger      *log.Entry
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Logger == nil {
		c.Logger = log.WithField("component", "outbox-worker")
	}
	return c
}

// Worker переносит события заказов из outbox в брокер. Порядок внутри батча
// совпадает с порядком записи, поэтому события одного заказа не обгоняют друг друга.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       Config
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config) *Worker {
	return &Worker{repo: repo, publisher: publisher, cfg: cfg.withDefaults()}
}

// Run опрашивает outbox до отмены ctx и всегда возвращает nil, так что подходит для errgroup.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.cfg.Logger
	if w.repo == nil || w.publisher == nil {
		logger.Warn("outbox worker disabled: no repository or publisher")
		<-ctx.Done()
		return nil
	}

	logger.WithFields(log.Fields{
		"poll_interval": w.cfg.PollInterval,
		"batch_size":    w.cfg.BatchSize,
	}).Info("outbox worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.Flush(ctx)
		select {
		case <-ctx.Done():
			logger.Info("outbox worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush отправляет один батч и возвращает число доставленных событий.
// Недоставленное после всех попыток событие уходит в DLQ и помечается failed.
func (w *Worker) Flush(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.cfg.BatchSize)
	if err != nil {
		w.cfg.Logger.WithError(err).Warn("outbox pull failed")
		return 0
	}

	delivered := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		entry := w.cfg.Logger.WithFields(log.Fields{
			"outbox_id":  msg.ID,
			"order_id":   msg.AggregateID,
			"event_type": msg.EventType,
		})

		if err := w.deliver(ctx, msg); err != nil {
			if ctx.Err() != nil {
				break
			}
			deliveries.WithLabelValues("failed").Inc()
			entry.WithError(err).Error("outbox event undeliverable")
			w.bury(ctx, msg, err, entry)
			continue
		}

		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			// событие уйдёт повторно на следующем проходе
			entry.WithError(err).Warn("outbox mark sent failed")
			continue
		}
		delivered++
	}
	return delivered
}

// deliver публикует событие, удваивая паузу между неудачными попытками.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	delay := w.cfg.RetryDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = w.publisher.Publish(msg); err == nil {
			deliveries.WithLabelValues("sent").Inc()
			return nil
		}
		deliveries.WithLabelValues("retry").Inc()
		if attempt >= w.cfg.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", domain.ErrOutboxPublish, attempt, err)
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			delay *= 2
		}
	}
}

// DeadLetter — тело события в DLQ: исходное событие плюс причина отказа.
// Утилита переотправки разбирает его обратно в OutboxMessage.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// bury отправляет событие в DLQ и снимает его с очереди.
func (w *Worker) bury(ctx context.Context, msg domain.OutboxMessage, cause error, entry *log.Entry) {
	if w.cfg.DeadLetters != nil {
		if err := w.cfg.DeadLetters.Publish(asDeadLetter(msg, cause)); err != nil {
			deliveries.WithLabelValues("dlq_failed").Inc()
			entry.WithError(err).Warn("outbox dead letter publish failed")
		}
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		entry.WithError(err).Warn("outbox mark failed failed")
	}
}

func asDeadLetter(msg domain.OutboxMessage, cause error) domain.OutboxMessage {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	body, _ := json.Marshal(DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishError:  cause.Error(),
		FailedAt:      time.Now().UTC(),
	})

	out := msg
	out.Payload = body
	return out
}

// Restore возвращает исходное событие outbox.
func (d DeadLetter) Restore() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.cfg.Logger.WithError(err).Debug("outbox stats unavailable")
		return
	}
	backlogSize.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		backlogAge.Set(0)
		return
	}
	backlogAge.Set(max(time.Since(stats.OldestPendingAt).Seconds(), 0))
}
