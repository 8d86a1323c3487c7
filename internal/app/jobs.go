/**
 * @description
 * Scheduled job implementations: the daily overdue sweep, the stale
 * notification-counter reset, and the due-soon reminder fanout that feeds the
 * wallet push collaborator through the message broker.
 */

package app

import (
	"context"
	"log/slog"

	"github.com/campuspass/pass-service/internal/domain"
	"github.com/campuspass/pass-service/pkg/rabbitmq"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	svc           *Service
	producer      rabbitmq.Publisher
	logger        *slog.Logger
	dueSoonWindow int
}

// NewJobs creates a new Jobs runner. dueSoonWindow is the number of days ahead
// the reminder job looks.
func NewJobs(svc *Service, producer rabbitmq.Publisher, logger *slog.Logger, dueSoonWindow int) *Jobs {
	return &Jobs{
		svc:           svc,
		producer:      producer,
		logger:        logger.With("component", "jobs"),
		dueSoonWindow: dueSoonWindow,
	}
}

func passKeys(passes []domain.Pass) []domain.PassKey {
	keys := make([]domain.PassKey, 0, len(passes))
	for _, p := range passes {
		keys = append(keys, p.Key())
	}
	return keys
}

// ProcessOverduePasses marks every pass that expired yesterday as overdue.
func (j *Jobs) ProcessOverduePasses() {
	j.logger.Info("starting overdue sweep job")
	ctx := context.Background()

	expired, err := j.svc.ExpiredYesterday(ctx)
	if err != nil {
		j.logger.Error("failed to scan expired passes", "err", err)
		return
	}
	if len(expired) == 0 {
		j.logger.Info("overdue sweep job finished", "marked", 0)
		return
	}

	marked, err := j.svc.MarkOverdue(ctx, passKeys(expired))
	if err != nil {
		j.logger.Error("failed to mark passes overdue", "err", err)
		return
	}
	j.logger.Info("overdue sweep job finished", "marked", marked)
}

// ResetStaleNotificationCounters clears notification counters older than 24h.
func (j *Jobs) ResetStaleNotificationCounters() {
	j.logger.Info("starting notification counter reset job")
	ctx := context.Background()

	reset, err := j.svc.ResetStaleNotificationCounts(ctx)
	if err != nil {
		j.logger.Error("failed to reset notification counters", "err", err)
		return
	}
	j.logger.Info("notification counter reset job finished", "reset", reset)
}

// SendDueSoonReminders finds passes due in the configured window, bumps their
// notification bookkeeping, and publishes one due-soon event per pass for the
// wallet push collaborator.
func (j *Jobs) SendDueSoonReminders() {
	j.logger.Info("starting due-soon reminder job", "window_days", j.dueSoonWindow)
	ctx := context.Background()

	due, err := j.svc.DueInDays(ctx, j.dueSoonWindow)
	if err != nil {
		j.logger.Error("failed to scan due-soon passes", "err", err)
		return
	}
	if len(due) == 0 {
		j.logger.Info("due-soon reminder job finished", "notified", 0)
		return
	}

	notified, err := j.svc.IncrementNotificationCounts(ctx, passKeys(due))
	if err != nil {
		j.logger.Error("failed to bump notification counters", "err", err)
		return
	}

	for _, p := range due {
		if err := j.producer.PublishPassEvent(ctx, rabbitmq.NewPassEvent(rabbitmq.PassEventDueSoon, p.Key(), p.TotalToPay, p.EndDueDate)); err != nil {
			j.logger.Error("failed to publish due-soon event", "key", p.Key().String(), "err", err)
		}
	}
	j.logger.Info("due-soon reminder job finished", "notified", notified)
}
