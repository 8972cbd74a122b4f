// Package notifications delivers state-change notices for enrollments and
// admission applications through the background queue.
package notifications

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/queue"
)

// JobType is the queue job type carrying a models.Notification
const JobType = "notification:send"

// Sender performs the actual delivery
type Sender interface {
	Send(ctx context.Context, n models.Notification) error
}

// Notifier logs intent, delegates to a Sender and logs completion. Delivery
// errors are returned as is so the queue retries the job.
type Notifier struct {
	sender   Sender
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewNotifier creates a notifier around sender
func NewNotifier(sender Sender, logger zerolog.Logger) *Notifier {
	return &Notifier{
		sender:   sender,
		validate: validator.New(),
		logger:   logger,
	}
}

// Notify delivers one notification
func (n *Notifier) Notify(ctx context.Context, notification models.Notification) error {
	if err := n.validate.Struct(notification); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidationFailed, err)
	}
	if notification.EntityType == models.NotificationEntityEnrollment && !knownEnrollmentContext(notification.Context) {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownNotifyContext, notification.Context)
	}

	log := n.logger.With().
		Str("entityType", string(notification.EntityType)).
		Int64("entityId", notification.EntityID).
		Int64("recipientId", notification.RecipientID).
		Str("context", notification.Context).
		Logger()

	log.Info().Msg("Dispatching notification")
	if err := n.sender.Send(ctx, notification); err != nil {
		log.Warn().Err(err).Msg("Notification delivery failed")
		return err
	}
	log.Info().Msg("Notification delivered")
	return nil
}

// Handle is the queue handler for JobType
func (n *Notifier) Handle(ctx context.Context, job queue.Job) error {
	var notification models.Notification
	if err := job.Decode(&notification); err != nil {
		return err
	}
	return n.Notify(ctx, notification)
}

func knownEnrollmentContext(context string) bool {
	switch context {
	case models.NotifyContextEnrolled, models.NotifyContextWaitlisted, models.NotifyContextGraded:
		return true
	}
	return false
}

// Enqueue schedules a notification. Failures are logged and swallowed; the
// state change that triggered the notification has already committed.
func Enqueue(ctx context.Context, enqueuer queue.Enqueuer, logger zerolog.Logger, notification models.Notification) {
	jobID, err := enqueuer.Enqueue(ctx, JobType, notification)
	if err != nil {
		logger.Error().Err(err).
			Str("entityType", string(notification.EntityType)).
			Int64("entityId", notification.EntityID).
			Str("context", notification.Context).
			Msg("Failed to enqueue notification")
		return
	}
	logger.Debug().Str("jobId", jobID).Int64("entityId", notification.EntityID).
		Str("context", notification.Context).Msg("Notification enqueued")
}
