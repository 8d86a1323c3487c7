/**
 * @description
 * This file defines the structured filter vocabulary for pass queries. A
 * FilterSpec carries at most one predicate per filterable field; every populated
 * field is ANDed into the compiled query. Each predicate shape is a small tagged
 * struct so the compiler can switch exhaustively instead of sniffing untyped
 * maps.
 *
 * @notes
 * - An include/exclude filter with an empty values list means "no filter on
 *   this axis", never "match nothing". The compiler relies on Validate having
 *   run first, so malformed specs fail fast before any SQL is built.
 */

package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CompareOp is one of the six relational operators usable in single-value
// comparisons.
type CompareOp string

const (
	CompareEq  CompareOp = "eq"
	CompareNeq CompareOp = "neq"
	CompareGt  CompareOp = "gt"
	CompareLt  CompareOp = "lt"
	CompareGte CompareOp = "gte"
	CompareLte CompareOp = "lte"
)

func (op CompareOp) valid() bool {
	switch op {
	case CompareEq, CompareNeq, CompareGt, CompareLt, CompareGte, CompareLte:
		return true
	}
	return false
}

// SetFilterType distinguishes membership from anti-membership.
type SetFilterType string

const (
	SetFilterInclude SetFilterType = "include"
	SetFilterExclude SetFilterType = "exclude"
)

// SetFilter is an include/exclude membership test over discrete values.
type SetFilter[T ~string | uuid.UUID] struct {
	Type   SetFilterType `json:"type"`
	Values []T           `json:"values"`
}

// Empty reports whether the filter carries no values and therefore no predicate.
func (f SetFilter[T]) Empty() bool { return len(f.Values) == 0 }

// NumericFilterKind tags the two shapes a numeric filter can take.
type NumericFilterKind string

const (
	NumericSingle NumericFilterKind = "single"
	NumericRange  NumericFilterKind = "range"
)

// NumericFilter is either a single-value comparison or an inclusive range,
// distinguished by Kind.
type NumericFilter struct {
	Kind  NumericFilterKind `json:"kind"`
	Op    CompareOp         `json:"op,omitempty"`
	Value int64             `json:"value,omitempty"`
	Min   int64             `json:"min,omitempty"`
	Max   int64             `json:"max,omitempty"`
}

func (f NumericFilter) validate(field string) error {
	switch f.Kind {
	case NumericSingle:
		if !f.Op.valid() {
			return fmt.Errorf("%s: unknown operator %q", field, f.Op)
		}
	case NumericRange:
		if f.Min > f.Max {
			return fmt.Errorf("%s: range min %d exceeds max %d", field, f.Min, f.Max)
		}
	default:
		return fmt.Errorf("%s: unknown numeric filter kind %q", field, f.Kind)
	}
	return nil
}

// DateFilterKind tags the two shapes a date filter can take.
type DateFilterKind string

const (
	DateSingle DateFilterKind = "single"
	DateRange  DateFilterKind = "range"
)

// DateFilter is either a single timestamp comparison or an inclusive date
// range, distinguished by Kind. Range bounds are inclusive on both ends.
type DateFilter struct {
	Kind  DateFilterKind `json:"kind"`
	Op    CompareOp      `json:"op,omitempty"`
	Value time.Time      `json:"value,omitempty"`
	Start time.Time      `json:"start,omitempty"`
	End   time.Time      `json:"end,omitempty"`
}

func (f DateFilter) validate(field string) error {
	switch f.Kind {
	case DateSingle:
		if !f.Op.valid() {
			return fmt.Errorf("%s: unknown operator %q", field, f.Op)
		}
		if f.Value.IsZero() {
			return fmt.Errorf("%s: comparison value is required", field)
		}
	case DateRange:
		if f.Start.IsZero() || f.End.IsZero() {
			return fmt.Errorf("%s: range bounds are required", field)
		}
		if f.Start.After(f.End) {
			return fmt.Errorf("%s: range start is after end", field)
		}
	default:
		return fmt.Errorf("%s: unknown date filter kind %q", field, f.Kind)
	}
	return nil
}

// ListFilter is a direct list-membership test (field IN list).
type ListFilter[T ~int | ~string] struct {
	Values []T `json:"values"`
}

// Empty reports whether the filter carries no values.
func (f ListFilter[T]) Empty() bool { return len(f.Values) == 0 }

// FilterSpec is the full set of predicates for one pass query. Nil fields
// contribute no predicate; all populated fields are conjoined. A spec is built
// fresh per request and never persisted.
type FilterSpec struct {
	Careers         *SetFilter[uuid.UUID]     `json:"careers,omitempty"`
	PaymentStatuses *SetFilter[PaymentStatus] `json:"payment_statuses,omitempty"`
	StudentStatuses *SetFilter[StudentStatus] `json:"student_statuses,omitempty"`
	PassStatuses    *SetFilter[PassStatus]    `json:"pass_statuses,omitempty"`
	Semesters       *ListFilter[int]          `json:"semesters,omitempty"`
	TotalToPay      *NumericFilter            `json:"total_to_pay,omitempty"`
	Cashback        *NumericFilter            `json:"cashback,omitempty"`
	EnrollmentYear  *NumericFilter            `json:"enrollment_year,omitempty"`
	StartDueDate    *DateFilter               `json:"start_due_date,omitempty"`
	EndDueDate      *DateFilter               `json:"end_due_date,omitempty"`
}

var errUnknownSetFilterType = errors.New("unknown set filter type")

func validateSetType(field string, t SetFilterType) error {
	if t != SetFilterInclude && t != SetFilterExclude {
		return fmt.Errorf("%s: %w %q", field, errUnknownSetFilterType, t)
	}
	return nil
}

// Validate rejects malformed specs before any store interaction. An entirely
// empty spec is valid and degenerates to an unfiltered query.
func (s FilterSpec) Validate() error {
	if s.Careers != nil {
		if err := validateSetType("careers", s.Careers.Type); err != nil {
			return err
		}
	}
	if s.PaymentStatuses != nil {
		if err := validateSetType("payment_statuses", s.PaymentStatuses.Type); err != nil {
			return err
		}
	}
	if s.StudentStatuses != nil {
		if err := validateSetType("student_statuses", s.StudentStatuses.Type); err != nil {
			return err
		}
	}
	if s.PassStatuses != nil {
		if err := validateSetType("pass_statuses", s.PassStatuses.Type); err != nil {
			return err
		}
	}
	if s.TotalToPay != nil {
		if err := s.TotalToPay.validate("total_to_pay"); err != nil {
			return err
		}
	}
	if s.Cashback != nil {
		if err := s.Cashback.validate("cashback"); err != nil {
			return err
		}
	}
	if s.EnrollmentYear != nil {
		if err := s.EnrollmentYear.validate("enrollment_year"); err != nil {
			return err
		}
	}
	if s.StartDueDate != nil {
		if err := s.StartDueDate.validate("start_due_date"); err != nil {
			return err
		}
	}
	if s.EndDueDate != nil {
		if err := s.EndDueDate.validate("end_due_date"); err != nil {
			return err
		}
	}
	return nil
}
