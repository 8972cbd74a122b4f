package notifications

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/pkg/email"
)

// LogSender records notifications without delivering them
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, n models.Notification) error {
	s.Logger.Info().
		Str("entityType", string(n.EntityType)).
		Int64("entityId", n.EntityID).
		Int64("recipientId", n.RecipientID).
		Str("context", n.Context).
		Msg("Notification recorded")
	return nil
}

// EmailSender delivers notifications by mail. RecipientFormat turns a student id
// into an address, e.g. "%d@students.example.edu".
type EmailSender struct {
	Mailer          email.Mailer
	RecipientFormat string
}

func (s EmailSender) Send(_ context.Context, n models.Notification) error {
	to := fmt.Sprintf(s.RecipientFormat, n.RecipientID)
	return s.Mailer.Send(to, Subject(n), Body(n))
}

// Subject is a one-line summary of the notification
func Subject(n models.Notification) string {
	switch {
	case n.EntityType == models.NotificationEntityApplication:
		return fmt.Sprintf("Application %d: %s", n.EntityID, n.Context)
	case n.Context == models.NotifyContextEnrolled:
		return fmt.Sprintf("Enrollment confirmed for section %d", n.SectionID)
	case n.Context == models.NotifyContextWaitlisted:
		return fmt.Sprintf("Waitlisted for section %d", n.SectionID)
	case n.Context == models.NotifyContextGraded:
		return fmt.Sprintf("Grade posted for section %d", n.SectionID)
	default:
		return fmt.Sprintf("Enrollment %d updated", n.EntityID)
	}
}

// Body is the plain-text message body
func Body(n models.Notification) string {
	if n.EntityType == models.NotificationEntityApplication {
		return fmt.Sprintf("The status of application %d is now %q.\n", n.EntityID, n.Context)
	}
	body := fmt.Sprintf("Enrollment %d in section %d: %s.\n", n.EntityID, n.SectionID, n.Context)
	if n.Grade != "" {
		body += fmt.Sprintf("Grade: %s\n", n.Grade)
	}
	return body
}
