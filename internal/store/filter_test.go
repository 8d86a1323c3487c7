package store

import (
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campuspass/pass-service/internal/domain"
)

func compileToSQL(t *testing.T, universityID uuid.UUID, spec domain.FilterSpec) (string, []any) {
	t.Helper()
	pred, err := compileFilter(universityID, spec)
	require.NoError(t, err)
	query, args, err := sq.Select("*").From("passes").Where(pred).PlaceholderFormat(sq.Dollar).ToSql()
	require.NoError(t, err)
	return query, args
}

func TestCompileFilter_EmptySpecScopesToUniversity(t *testing.T) {
	universityID := uuid.New()
	query, args := compileToSQL(t, universityID, domain.FilterSpec{})

	require.Contains(t, query, "university_id = $1")
	// squirrel resolves driver.Valuer arguments, so uuids surface as strings.
	require.Equal(t, []any{universityID.String()}, args)
}

func TestCompileFilter_IncludeAndExcludePolarity(t *testing.T) {
	universityID := uuid.New()
	careerA, careerB := uuid.New(), uuid.New()

	query, args := compileToSQL(t, universityID, domain.FilterSpec{
		Careers: &domain.SetFilter[uuid.UUID]{
			Type:   domain.SetFilterInclude,
			Values: []uuid.UUID{careerA, careerB},
		},
		PaymentStatuses: &domain.SetFilter[domain.PaymentStatus]{
			Type:   domain.SetFilterExclude,
			Values: []domain.PaymentStatus{domain.PaymentStatusPaid},
		},
	})

	require.Contains(t, query, "career_id IN ($2,$3)")
	require.Contains(t, query, "payment_status NOT IN ($4)")
	require.Equal(t, []any{universityID.String(), careerA.String(), careerB.String(), domain.PaymentStatusPaid}, args)
}

func TestCompileFilter_EmptyValueListContributesNoPredicate(t *testing.T) {
	universityID := uuid.New()
	query, args := compileToSQL(t, universityID, domain.FilterSpec{
		Careers: &domain.SetFilter[uuid.UUID]{Type: domain.SetFilterInclude, Values: nil},
		PassStatuses: &domain.SetFilter[domain.PassStatus]{
			Type:   domain.SetFilterExclude,
			Values: []domain.PassStatus{},
		},
	})

	require.NotContains(t, query, "career_id")
	require.NotContains(t, query, "pass_status")
	require.Equal(t, []any{universityID.String()}, args)
}

func TestCompileFilter_OperatorMapping(t *testing.T) {
	universityID := uuid.New()
	cases := []struct {
		op   domain.CompareOp
		want string
	}{
		{domain.CompareEq, "total_to_pay = $2"},
		{domain.CompareNeq, "total_to_pay <> $2"},
		{domain.CompareGt, "total_to_pay > $2"},
		{domain.CompareLt, "total_to_pay < $2"},
		{domain.CompareGte, "total_to_pay >= $2"},
		{domain.CompareLte, "total_to_pay <= $2"},
	}
	for _, tc := range cases {
		t.Run(string(tc.op), func(t *testing.T) {
			query, args := compileToSQL(t, universityID, domain.FilterSpec{
				TotalToPay: &domain.NumericFilter{Kind: domain.NumericSingle, Op: tc.op, Value: 5000},
			})
			require.Contains(t, query, tc.want)
			require.Equal(t, []any{universityID.String(), int64(5000)}, args)
		})
	}
}

func TestCompileFilter_RangesAreInclusiveOnBothEnds(t *testing.T) {
	universityID := uuid.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	query, args := compileToSQL(t, universityID, domain.FilterSpec{
		EnrollmentYear: &domain.NumericFilter{Kind: domain.NumericRange, Min: 2020, Max: 2024},
		EndDueDate:     &domain.DateFilter{Kind: domain.DateRange, Start: start, End: end},
	})

	require.Contains(t, query, "enrollment_year >= $2")
	require.Contains(t, query, "enrollment_year <= $3")
	require.Contains(t, query, "end_due_date >= $4")
	require.Contains(t, query, "end_due_date <= $5")
	require.Equal(t, []any{universityID.String(), int64(2020), int64(2024), start, end}, args)
}

func TestCompileFilter_SemesterListIsDirectMembership(t *testing.T) {
	universityID := uuid.New()
	query, args := compileToSQL(t, universityID, domain.FilterSpec{
		Semesters: &domain.ListFilter[int]{Values: []int{1, 2, 3}},
	})

	require.Contains(t, query, "semester IN ($2,$3,$4)")
	require.Equal(t, []any{universityID.String(), 1, 2, 3}, args)
}

func TestCompileFilter_IsPure(t *testing.T) {
	universityID := uuid.New()
	spec := domain.FilterSpec{
		Careers: &domain.SetFilter[uuid.UUID]{
			Type:   domain.SetFilterInclude,
			Values: []uuid.UUID{uuid.New()},
		},
		TotalToPay: &domain.NumericFilter{Kind: domain.NumericRange, Min: 0, Max: 100000},
	}

	first, args1 := compileToSQL(t, universityID, spec)
	second, args2 := compileToSQL(t, universityID, spec)

	require.Equal(t, first, second)
	require.Equal(t, args1, args2)
}

func TestCompileFilter_RejectsUnknownSetType(t *testing.T) {
	_, err := compileFilter(uuid.New(), domain.FilterSpec{
		Careers: &domain.SetFilter[uuid.UUID]{Type: "sideways", Values: []uuid.UUID{uuid.New()}},
	})
	require.Error(t, err)
}
