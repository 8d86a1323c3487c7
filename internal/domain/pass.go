/**
 * @description
 * This file defines the core domain models for the pass-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout
 * the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Monetary amounts are stored as `int64` in the smallest currency unit (cents),
 *   which avoids floating-point inaccuracies.
 * - A pass is uniquely identified by the (university, career, unique identifier)
 *   triple; the triple is immutable after creation.
 */

package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the billing state of a pass.
type PaymentStatus string

const (
	PaymentStatusDue     PaymentStatus = "due"
	PaymentStatusOverdue PaymentStatus = "overdue"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// PassStatus marks whether a pass is usable. Passes are never physically
// deleted; deactivation flips this to inactive.
type PassStatus string

const (
	PassStatusActive   PassStatus = "active"
	PassStatusInactive PassStatus = "inactive"
)

// StudentStatus is the academic state of the pass holder.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "active"
	StudentStatusInactive  StudentStatus = "inactive"
	StudentStatusGraduated StudentStatus = "graduated"
)

// InstallationStatus tracks whether the wallet artifact was installed on a device.
type InstallationStatus string

const (
	InstallationStatusPending   InstallationStatus = "pending"
	InstallationStatusInstalled InstallationStatus = "installed"
)

// WalletProvider names one of the two wallet integrations.
type WalletProvider string

const (
	WalletProviderGoogle WalletProvider = "google"
	WalletProviderApple  WalletProvider = "apple"
)

// PassKey is the immutable composite key identifying one pass.
type PassKey struct {
	UniversityID     uuid.UUID `json:"university_id"`
	CareerID         uuid.UUID `json:"career_id"`
	UniqueIdentifier string    `json:"unique_identifier"`
}

// String renders the key for logs and error correlation.
func (k PassKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.UniversityID, k.CareerID, k.UniqueIdentifier)
}

// Pass represents one digital wallet pass record. This struct maps directly to
// the `passes` table in the database.
type Pass struct {
	UniversityID             uuid.UUID          `json:"university_id"`
	CareerID                 uuid.UUID          `json:"career_id"`
	UniqueIdentifier         string             `json:"unique_identifier"`
	FullName                 string             `json:"full_name"`
	PaymentStatus            PaymentStatus      `json:"payment_status"`
	PassStatus               PassStatus         `json:"pass_status"`
	StudentStatus            StudentStatus      `json:"student_status"`
	TotalToPay               int64              `json:"total_to_pay"` // in cents
	Cashback                 int64              `json:"cashback"`     // in cents
	StartDueDate             time.Time          `json:"start_due_date"`
	EndDueDate               time.Time          `json:"end_due_date"`
	Semester                 int                `json:"semester"`
	EnrollmentYear           int                `json:"enrollment_year"`
	GoogleWalletObjectID     *string            `json:"google_wallet_object_id,omitempty"`
	AppleWalletSerialNumber  *string            `json:"apple_wallet_serial_number,omitempty"`
	GoogleInstallationStatus InstallationStatus `json:"google_installation_status"`
	AppleInstallationStatus  InstallationStatus `json:"apple_installation_status"`
	NotificationCount        int                `json:"notification_count"`
	LastNotificationDate     *time.Time         `json:"last_notification_date,omitempty"`
	CreatedAt                time.Time          `json:"created_at"`
	UpdatedAt                time.Time          `json:"updated_at"`
}

// Key returns the composite key of the pass.
func (p Pass) Key() PassKey {
	return PassKey{UniversityID: p.UniversityID, CareerID: p.CareerID, UniqueIdentifier: p.UniqueIdentifier}
}

// WalletInstalled reports whether at least one wallet artifact is installed.
func (p Pass) WalletInstalled() bool {
	return p.GoogleInstallationStatus == InstallationStatusInstalled ||
		p.AppleInstallationStatus == InstallationStatusInstalled
}

// NewPass is the DTO for one record submitted through bulk ingestion or the
// single-create endpoint. The batch is schema-checked upstream; Validate covers
// the domain rules the store cannot express.
type NewPass struct {
	UniversityID     uuid.UUID     `json:"university_id"`
	CareerID         uuid.UUID     `json:"career_id"`
	UniqueIdentifier string        `json:"unique_identifier"`
	FullName         string        `json:"full_name"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	StudentStatus    StudentStatus `json:"student_status"`
	TotalToPay       int64         `json:"total_to_pay"`
	Cashback         int64         `json:"cashback"`
	StartDueDate     time.Time     `json:"start_due_date"`
	EndDueDate       time.Time     `json:"end_due_date"`
	Semester         int           `json:"semester"`
	EnrollmentYear   int           `json:"enrollment_year"`
}

// Key returns the composite key of the record.
func (n NewPass) Key() PassKey {
	return PassKey{UniversityID: n.UniversityID, CareerID: n.CareerID, UniqueIdentifier: n.UniqueIdentifier}
}

// Validate enforces the domain invariants of a new pass record.
func (n NewPass) Validate() error {
	if n.UniversityID == uuid.Nil {
		return errors.New("university id is required")
	}
	if n.CareerID == uuid.Nil {
		return errors.New("career id is required")
	}
	if n.UniqueIdentifier == "" {
		return errors.New("unique identifier is required")
	}
	switch n.PaymentStatus {
	case PaymentStatusDue, PaymentStatusOverdue, PaymentStatusPaid:
	default:
		return fmt.Errorf("unknown payment status %q", n.PaymentStatus)
	}
	switch n.StudentStatus {
	case StudentStatusActive, StudentStatusInactive, StudentStatusGraduated:
	default:
		return fmt.Errorf("unknown student status %q", n.StudentStatus)
	}
	if n.TotalToPay < 0 {
		return errors.New("total to pay must not be negative")
	}
	if n.Cashback < 0 {
		return errors.New("cashback must not be negative")
	}
	if n.EndDueDate.Before(n.StartDueDate) {
		return errors.New("due date range is inverted")
	}
	if n.Semester <= 0 {
		return errors.New("semester must be positive")
	}
	if n.EnrollmentYear < 1900 {
		return errors.New("enrollment year must be 1900 or later")
	}
	return nil
}

// DueUpdate carries the per-row new values for a heterogeneous bulk markDue
// operation: each target pass receives its own amount and deadline.
type DueUpdate struct {
	Key        PassKey   `json:"key"`
	TotalToPay int64     `json:"total_to_pay"`
	EndDueDate time.Time `json:"end_due_date"`
}

// Validate checks one due update row.
func (u DueUpdate) Validate() error {
	if u.TotalToPay < 0 {
		return errors.New("total to pay must not be negative")
	}
	if u.EndDueDate.IsZero() {
		return errors.New("end due date is required")
	}
	return nil
}

// ItemError correlates a per-record bulk failure back to its source row.
type ItemError struct {
	Key     PassKey `json:"key"`
	Message string  `json:"message"`
}

// BulkResult summarizes a bulk mutation: affected row count plus per-record
// failures. All-or-nothing semantics are deliberately not offered.
type BulkResult struct {
	Updated  int64       `json:"updated"`
	Failures []ItemError `json:"failures"`
}

// PageResult is the envelope returned by paginated queries. Total reflects the
// filtered set, not the unfiltered table.
type PageResult struct {
	Content []Pass `json:"content"`
	Total   int64  `json:"total"`
	Page    int    `json:"page"`
	Size    int    `json:"size"`
}
