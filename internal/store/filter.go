/**
 * @description
 * This file contains the filter compiler: the single translation from a
 * domain.FilterSpec into a squirrel predicate conjunction over the `passes`
 * table. Every read path (paginated listing, count, and bulk export) goes
 * through compileFilter, so "what you filtered is what you acted on" holds by
 * construction.
 *
 * @dependencies
 * - github.com/Masterminds/squirrel: SQL predicate construction.
 */

package store

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/campuspass/pass-service/internal/domain"
)

// compileFilter builds the WHERE conjunction for one pass query. The filter
// must have passed domain validation; compileFilter itself never mutates its
// input and an empty filter compiles to the bare university scope.
func compileFilter(universityID uuid.UUID, spec domain.FilterSpec) (sq.And, error) {
	conj := sq.And{sq.Eq{"university_id": universityID}}

	if p, err := setPredicate("career_id", spec.Careers); err != nil {
		return nil, err
	} else if p != nil {
		conj = append(conj, p)
	}
	if p, err := setPredicate("payment_status", spec.PaymentStatuses); err != nil {
		return nil, err
	} else if p != nil {
		conj = append(conj, p)
	}
	if p, err := setPredicate("student_status", spec.StudentStatuses); err != nil {
		return nil, err
	} else if p != nil {
		conj = append(conj, p)
	}
	if p, err := setPredicate("pass_status", spec.PassStatuses); err != nil {
		return nil, err
	} else if p != nil {
		conj = append(conj, p)
	}

	// Direct list membership, no include/exclude polarity.
	if spec.Semesters != nil && !spec.Semesters.Empty() {
		conj = append(conj, sq.Eq{"semester": spec.Semesters.Values})
	}

	if p, err := numericPredicate("total_to_pay", spec.TotalToPay); err != nil {
		return nil, err
	} else if p != nil {
		conj = append(conj, p)
	}
	if p, err := numericPredicate("cashback", spec.Cashback); err != nil {
		return nil, err
	} else if p != nil {
		conj = append(conj, p)
	}
	if p, err := numericPredicate("enrollment_year", spec.EnrollmentYear); err != nil {
		return nil, err
	} else if p != nil {
		conj = append(conj, p)
	}
	if p, err := datePredicate("start_due_date", spec.StartDueDate); err != nil {
		return nil, err
	} else if p != nil {
		conj = append(conj, p)
	}
	if p, err := datePredicate("end_due_date", spec.EndDueDate); err != nil {
		return nil, err
	} else if p != nil {
		conj = append(conj, p)
	}

	return conj, nil
}

// setPredicate translates an include/exclude membership filter. An empty
// values list explicitly yields no predicate: it must match all rows on that
// axis, never zero rows.
func setPredicate[T ~string | uuid.UUID](column string, f *domain.SetFilter[T]) (sq.Sqlizer, error) {
	if f == nil || f.Empty() {
		return nil, nil
	}
	switch f.Type {
	case domain.SetFilterInclude:
		return sq.Eq{column: f.Values}, nil
	case domain.SetFilterExclude:
		return sq.NotEq{column: f.Values}, nil
	default:
		return nil, fmt.Errorf("column %s: unknown set filter type %q", column, f.Type)
	}
}

func comparePredicate(column string, op domain.CompareOp, value any) (sq.Sqlizer, error) {
	switch op {
	case domain.CompareEq:
		return sq.Eq{column: value}, nil
	case domain.CompareNeq:
		return sq.NotEq{column: value}, nil
	case domain.CompareGt:
		return sq.Gt{column: value}, nil
	case domain.CompareLt:
		return sq.Lt{column: value}, nil
	case domain.CompareGte:
		return sq.GtOrEq{column: value}, nil
	case domain.CompareLte:
		return sq.LtOrEq{column: value}, nil
	default:
		return nil, fmt.Errorf("column %s: unknown operator %q", column, op)
	}
}

func numericPredicate(column string, f *domain.NumericFilter) (sq.Sqlizer, error) {
	if f == nil {
		return nil, nil
	}
	switch f.Kind {
	case domain.NumericSingle:
		return comparePredicate(column, f.Op, f.Value)
	case domain.NumericRange:
		// Inclusive on both ends.
		return sq.And{sq.GtOrEq{column: f.Min}, sq.LtOrEq{column: f.Max}}, nil
	default:
		return nil, fmt.Errorf("column %s: unknown numeric filter kind %q", column, f.Kind)
	}
}

func datePredicate(column string, f *domain.DateFilter) (sq.Sqlizer, error) {
	if f == nil {
		return nil, nil
	}
	switch f.Kind {
	case domain.DateSingle:
		return comparePredicate(column, f.Op, f.Value)
	case domain.DateRange:
		// Date ranges behave like numeric ranges: both bounds inclusive.
		return sq.And{sq.GtOrEq{column: f.Start}, sq.LtOrEq{column: f.End}}, nil
	default:
		return nil, fmt.Errorf("column %s: unknown date filter kind %q", column, f.Kind)
	}
}
