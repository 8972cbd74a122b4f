package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/app/notifications"
	"github.com/yigit/registrar/internal/app/repositories"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/queue"
)

// EnrollmentService allocates section seats and maintains the waitlist
type EnrollmentService interface {
	// Enroll takes a seat if one is free, otherwise joins the end of the waitlist.
	Enroll(ctx context.Context, studentID, sectionID int64) (*models.Enrollment, error)
	// Drop marks the enrollment dropped. Dropping an enrolled enrollment frees its
	// seat and promotes the head of the waitlist in the same transaction; the
	// promoted enrollment, if any, is returned.
	Drop(ctx context.Context, enrollmentID int64) (dropped *models.Enrollment, promoted *models.Enrollment, err error)
	// PromoteFromWaitlist fills one free seat from the head of the waitlist.
	// It returns nil when the waitlist is empty or the section is full.
	PromoteFromWaitlist(ctx context.Context, sectionID int64) (*models.Enrollment, error)
	Waitlist(ctx context.Context, sectionID int64) ([]*models.Enrollment, error)
	// WaitlistPosition is 1-based; 0 means the enrollment is not waitlisted.
	WaitlistPosition(ctx context.Context, enrollment *models.Enrollment) (int, error)
}

type enrollmentService struct {
	sections    repositories.SectionRepository
	enrollments repositories.EnrollmentRepository
	enqueuer    queue.Enqueuer
	logger      zerolog.Logger
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(
	sections repositories.SectionRepository,
	enrollments repositories.EnrollmentRepository,
	enqueuer queue.Enqueuer,
	logger zerolog.Logger,
) EnrollmentService {
	return &enrollmentService{
		sections:    sections,
		enrollments: enrollments,
		enqueuer:    enqueuer,
		logger:      logger,
	}
}

func (s *enrollmentService) Enroll(ctx context.Context, studentID, sectionID int64) (*models.Enrollment, error) {
	if studentID <= 0 {
		return nil, apperrors.NewBadRequestError("student id must be positive")
	}

	var enrollment *models.Enrollment
	err := s.enrollments.WithSectionLock(ctx, sectionID, func(ctx context.Context, tx repositories.SectionTx) error {
		existing, err := tx.FindOpenEnrollment(ctx, studentID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.ErrAlreadyEnrolled
		}

		section := tx.Section()
		enrollment = &models.Enrollment{StudentID: studentID, Status: models.EnrollmentStatusWaitlisted}
		if section.HasSeat() {
			enrollment.Status = models.EnrollmentStatusEnrolled
		}
		if err := tx.InsertEnrollment(ctx, enrollment); err != nil {
			return err
		}
		if enrollment.Status == models.EnrollmentStatusEnrolled {
			return tx.SetEnrolledCount(ctx, section.EnrolledCount+1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("enrollmentId", enrollment.ID).
		Int64("sectionId", sectionID).
		Int64("studentId", studentID).
		Str("status", string(enrollment.Status)).
		Msg("Enrollment created")
	notifications.Enqueue(ctx, s.enqueuer, s.logger, models.EnrollmentNotification(enrollment, string(enrollment.Status)))

	return enrollment, nil
}

func (s *enrollmentService) Drop(ctx context.Context, enrollmentID int64) (*models.Enrollment, *models.Enrollment, error) {
	current, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, nil, err
	}

	var dropped, promoted *models.Enrollment
	err = s.enrollments.WithSectionLock(ctx, current.SectionID, func(ctx context.Context, tx repositories.SectionTx) error {
		// re-read under the lock; a concurrent drop may have won
		e, err := tx.GetEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if !e.Status.CanTransitionTo(models.EnrollmentStatusDropped) {
			return fmt.Errorf("%w: %s to %s", apperrors.ErrInvalidTransition, e.Status, models.EnrollmentStatusDropped)
		}
		if err := tx.UpdateStatus(ctx, e.ID, models.EnrollmentStatusDropped); err != nil {
			return err
		}
		wasEnrolled := e.Status == models.EnrollmentStatusEnrolled
		e.Status = models.EnrollmentStatusDropped
		dropped = e

		if !wasEnrolled {
			return nil
		}
		if err := tx.SetEnrolledCount(ctx, tx.Section().EnrolledCount-1); err != nil {
			return err
		}
		promoted, err = promoteNext(ctx, tx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Int64("enrollmentId", dropped.ID).
		Int64("sectionId", dropped.SectionID).
		Bool("promoted", promoted != nil).
		Msg("Enrollment dropped")
	if promoted != nil {
		s.notifyPromotion(ctx, promoted)
	}

	return dropped, promoted, nil
}

func (s *enrollmentService) PromoteFromWaitlist(ctx context.Context, sectionID int64) (*models.Enrollment, error) {
	var promoted *models.Enrollment
	err := s.enrollments.WithSectionLock(ctx, sectionID, func(ctx context.Context, tx repositories.SectionTx) error {
		var err error
		promoted, err = promoteNext(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if promoted != nil {
		s.notifyPromotion(ctx, promoted)
	}
	return promoted, nil
}

// promoteNext moves the head of the waitlist into a free seat. Must run under the section lock.
func promoteNext(ctx context.Context, tx repositories.SectionTx) (*models.Enrollment, error) {
	section := tx.Section()
	if !section.HasSeat() {
		return nil, nil
	}

	next, err := tx.NextWaitlisted(ctx)
	if err != nil || next == nil {
		return nil, err
	}

	if err := tx.UpdateStatus(ctx, next.ID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, err
	}
	if err := tx.SetEnrolledCount(ctx, section.EnrolledCount+1); err != nil {
		return nil, err
	}
	next.Status = models.EnrollmentStatusEnrolled
	return next, nil
}

func (s *enrollmentService) notifyPromotion(ctx context.Context, promoted *models.Enrollment) {
	s.logger.Info().
		Int64("enrollmentId", promoted.ID).
		Int64("sectionId", promoted.SectionID).
		Int64("studentId", promoted.StudentID).
		Msg("Promoted from waitlist")
	notifications.Enqueue(ctx, s.enqueuer, s.logger, models.EnrollmentNotification(promoted, models.NotifyContextEnrolled))
}

func (s *enrollmentService) Waitlist(ctx context.Context, sectionID int64) ([]*models.Enrollment, error) {
	if _, err := s.sections.GetByID(ctx, sectionID); err != nil {
		return nil, err
	}
	return s.enrollments.ListWaitlist(ctx, sectionID)
}

func (s *enrollmentService) WaitlistPosition(ctx context.Context, enrollment *models.Enrollment) (int, error) {
	if enrollment.Status != models.EnrollmentStatusWaitlisted {
		return 0, nil
	}
	waitlist, err := s.enrollments.ListWaitlist(ctx, enrollment.SectionID)
	if err != nil {
		return 0, err
	}
	for i, e := range waitlist {
		if e.ID == enrollment.ID {
			return i + 1, nil
		}
	}
	return 0, nil
}
