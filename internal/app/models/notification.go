package models

// NotificationEntity names the kind of record a notification is about.
type NotificationEntity string

const (
	NotificationEntityEnrollment  NotificationEntity = "enrollment"
	NotificationEntityApplication NotificationEntity = "application"
)

// Enrollment notification contexts. Application notifications carry the new
// application status as their context instead.
const (
	NotifyContextEnrolled   = "enrolled"
	NotifyContextWaitlisted = "waitlisted"
	NotifyContextGraded     = "graded"
)

// Notification is the payload of a notification job.
type Notification struct {
	EntityType NotificationEntity `json:"entityType" validate:"required,oneof=enrollment application"`
	EntityID   int64              `json:"entityId" validate:"required,gt=0"`
	// RecipientID is the student the notification is addressed to
	RecipientID int64  `json:"recipientId" validate:"required,gt=0"`
	Context     string `json:"context" validate:"required"`
	SectionID   int64  `json:"sectionId,omitempty"`
	Grade       string `json:"grade,omitempty"`
}

// EnrollmentNotification builds the notification for an enrollment state change.
func EnrollmentNotification(e *Enrollment, context string) Notification {
	n := Notification{
		EntityType:  NotificationEntityEnrollment,
		EntityID:    e.ID,
		RecipientID: e.StudentID,
		Context:     context,
		SectionID:   e.SectionID,
	}
	if e.Grade != nil {
		n.Grade = *e.Grade
	}
	return n
}
