package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func validRecord() NewPass {
	return NewPass{
		UniversityID:     uuid.New(),
		CareerID:         uuid.New(),
		UniqueIdentifier: "A-001",
		FullName:         "Ada Lovelace",
		PaymentStatus:    PaymentStatusDue,
		StudentStatus:    StudentStatusActive,
		TotalToPay:       150000,
		StartDueDate:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDueDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Semester:         1,
		EnrollmentYear:   2024,
	}
}

func TestNewPassValidate(t *testing.T) {
	if err := validRecord().Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*NewPass)
	}{
		{"missing university", func(r *NewPass) { r.UniversityID = uuid.Nil }},
		{"missing career", func(r *NewPass) { r.CareerID = uuid.Nil }},
		{"missing identifier", func(r *NewPass) { r.UniqueIdentifier = "" }},
		{"unknown payment status", func(r *NewPass) { r.PaymentStatus = "settled" }},
		{"unknown student status", func(r *NewPass) { r.StudentStatus = "enrolled" }},
		{"negative amount", func(r *NewPass) { r.TotalToPay = -1 }},
		{"negative cashback", func(r *NewPass) { r.Cashback = -1 }},
		{"inverted date range", func(r *NewPass) { r.EndDueDate = r.StartDueDate.AddDate(0, 0, -1) }},
		{"zero semester", func(r *NewPass) { r.Semester = 0 }},
		{"implausible enrollment year", func(r *NewPass) { r.EnrollmentYear = 1850 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRecord()
			tc.mutate(&rec)
			if err := rec.Validate(); err == nil {
				t.Fatal("expected validation failure")
			}
		})
	}
}

func TestDueUpdateValidate(t *testing.T) {
	ok := DueUpdate{
		Key:        PassKey{UniversityID: uuid.New(), CareerID: uuid.New(), UniqueIdentifier: "A-1"},
		TotalToPay: 100,
		EndDueDate: time.Now(),
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid update rejected: %v", err)
	}

	bad := ok
	bad.TotalToPay = -1
	if err := bad.Validate(); err == nil {
		t.Fatal("expected failure for negative amount")
	}

	bad = ok
	bad.EndDueDate = time.Time{}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected failure for missing deadline")
	}
}

func TestWalletInstalled(t *testing.T) {
	var p Pass
	p.GoogleInstallationStatus = InstallationStatusPending
	p.AppleInstallationStatus = InstallationStatusPending
	if p.WalletInstalled() {
		t.Fatal("no wallet installed yet")
	}
	p.AppleInstallationStatus = InstallationStatusInstalled
	if !p.WalletInstalled() {
		t.Fatal("apple install should count")
	}
}

func TestFilterSpecValidate(t *testing.T) {
	empty := FilterSpec{}
	if err := empty.Validate(); err != nil {
		t.Fatalf("empty spec must be valid: %v", err)
	}

	badSet := FilterSpec{Careers: &SetFilter[uuid.UUID]{Type: "sideways"}}
	if err := badSet.Validate(); err == nil {
		t.Fatal("expected failure for unknown set filter type")
	}

	badRange := FilterSpec{TotalToPay: &NumericFilter{Kind: NumericRange, Min: 10, Max: 5}}
	if err := badRange.Validate(); err == nil {
		t.Fatal("expected failure for inverted numeric range")
	}

	badOp := FilterSpec{EnrollmentYear: &NumericFilter{Kind: NumericSingle, Op: "almost"}}
	if err := badOp.Validate(); err == nil {
		t.Fatal("expected failure for unknown operator")
	}

	badDates := FilterSpec{EndDueDate: &DateFilter{Kind: DateRange, Start: time.Now(), End: time.Now().AddDate(0, 0, -1)}}
	if err := badDates.Validate(); err == nil {
		t.Fatal("expected failure for inverted date range")
	}
}
