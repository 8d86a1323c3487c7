/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. Dynamic statements (filtered reads, IN-tuple bulk updates, the
 * staged two-phase markDue apply) are built with squirrel; fixed statements
 * stay as plain SQL text.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/Masterminds/squirrel: Dynamic SQL construction.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: The domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuspass/pass-service/internal/domain"
)

var (
	ErrPassNotFound  = errors.New("pass not found")
	ErrDuplicatePass = errors.New("pass already exists")
)

const passColumns = `university_id, career_id, unique_identifier, full_name,
	payment_status, pass_status, student_status, total_to_pay, cashback,
	start_due_date, end_due_date, semester, enrollment_year,
	google_wallet_object_id, apple_wallet_serial_number,
	google_installation_status, apple_installation_status,
	notification_count, last_notification_date, created_at, updated_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db   *pgxpool.Pool
	stbl sq.StatementBuilderType
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		db:   db,
		stbl: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func scanPass(row pgx.Row) (domain.Pass, error) {
	var p domain.Pass
	err := row.Scan(
		&p.UniversityID, &p.CareerID, &p.UniqueIdentifier, &p.FullName,
		&p.PaymentStatus, &p.PassStatus, &p.StudentStatus, &p.TotalToPay, &p.Cashback,
		&p.StartDueDate, &p.EndDueDate, &p.Semester, &p.EnrollmentYear,
		&p.GoogleWalletObjectID, &p.AppleWalletSerialNumber,
		&p.GoogleInstallationStatus, &p.AppleInstallationStatus,
		&p.NotificationCount, &p.LastNotificationDate, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (r *PostgresRepository) queryPasses(ctx context.Context, query string, args []any) ([]domain.Pass, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passes []domain.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	return passes, rows.Err()
}

// ListPasses returns the filtered passes for one university. A limit <= 0
// disables pagination and returns the full filtered set for bulk actions.
func (r *PostgresRepository) ListPasses(ctx context.Context, universityID uuid.UUID, spec domain.FilterSpec, limit, offset int) ([]domain.Pass, error) {
	pred, err := compileFilter(universityID, spec)
	if err != nil {
		return nil, err
	}

	sb := r.stbl.Select(passColumns).
		From("passes").
		Where(pred).
		OrderBy("career_id", "unique_identifier")
	if limit > 0 {
		sb = sb.Limit(uint64(limit)).Offset(uint64(offset))
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryPasses(ctx, query, args)
}

// CountPasses counts the filtered set using the same compiled predicate as ListPasses.
func (r *PostgresRepository) CountPasses(ctx context.Context, universityID uuid.UUID, spec domain.FilterSpec) (int64, error) {
	pred, err := compileFilter(universityID, spec)
	if err != nil {
		return 0, err
	}

	query, args, err := r.stbl.Select("COUNT(*)").From("passes").Where(pred).ToSql()
	if err != nil {
		return 0, err
	}

	var total int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// FindPassByKey retrieves one pass by its composite key.
func (r *PostgresRepository) FindPassByKey(ctx context.Context, key domain.PassKey) (*domain.Pass, error) {
	query := fmt.Sprintf(`SELECT %s FROM passes WHERE university_id = $1 AND career_id = $2 AND unique_identifier = $3`, passColumns)
	p, err := scanPass(r.db.QueryRow(ctx, query, key.UniversityID, key.CareerID, key.UniqueIdentifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPassNotFound
		}
		return nil, err
	}
	return &p, nil
}

// keyTuplePredicate builds a `(university_id, career_id, unique_identifier) IN
// ((...), ...)` predicate for one chunk of composite keys. Keeping the tuple
// list chunk-sized is the caller's job; drivers cap statement parameter counts.
func keyTuplePredicate(keys []domain.PassKey) sq.Sqlizer {
	placeholders := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*3)
	for _, k := range keys {
		placeholders = append(placeholders, "(?,?,?)")
		args = append(args, k.UniversityID, k.CareerID, k.UniqueIdentifier)
	}
	return sq.Expr(
		fmt.Sprintf("(university_id, career_id, unique_identifier) IN (%s)", strings.Join(placeholders, ",")),
		args...,
	)
}

// FindPassesByKeys retrieves one chunk of passes by composite key. Keys with
// no matching row are silently absent from the result.
func (r *PostgresRepository) FindPassesByKeys(ctx context.Context, keys []domain.PassKey) ([]domain.Pass, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query, args, err := r.stbl.Select(passColumns).
		From("passes").
		Where(keyTuplePredicate(keys)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryPasses(ctx, query, args)
}

func dueWindowPredicate(from, to time.Time, requireWallet bool) sq.And {
	pred := sq.And{
		sq.GtOrEq{"end_due_date": from},
		sq.Lt{"end_due_date": to},
		sq.Eq{"payment_status": domain.PaymentStatusDue},
		sq.Eq{"pass_status": domain.PassStatusActive},
	}
	if requireWallet {
		pred = append(pred, sq.Or{
			sq.Eq{"google_installation_status": domain.InstallationStatusInstalled},
			sq.Eq{"apple_installation_status": domain.InstallationStatusInstalled},
		})
	}
	return pred
}

// CountDueBetween counts active due passes whose deadline falls in [from, to).
func (r *PostgresRepository) CountDueBetween(ctx context.Context, from, to time.Time, requireWallet bool) (int64, error) {
	query, args, err := r.stbl.Select("COUNT(*)").
		From("passes").
		Where(dueWindowPredicate(from, to, requireWallet)).
		ToSql()
	if err != nil {
		return 0, err
	}
	var total int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListDueBetween fetches one page of the due window scan. Ordering by the
// composite key keeps offset pagination stable across parallel page fetches.
func (r *PostgresRepository) ListDueBetween(ctx context.Context, from, to time.Time, requireWallet bool, limit, offset int) ([]domain.Pass, error) {
	query, args, err := r.stbl.Select(passColumns).
		From("passes").
		Where(dueWindowPredicate(from, to, requireWallet)).
		OrderBy("university_id", "career_id", "unique_identifier").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryPasses(ctx, query, args)
}

const insertPassColumns = "university_id, career_id, unique_identifier, full_name, payment_status, student_status, total_to_pay, cashback, start_due_date, end_due_date, semester, enrollment_year"

func insertPassValues(sb sq.InsertBuilder, rec domain.NewPass) sq.InsertBuilder {
	return sb.Values(
		rec.UniversityID, rec.CareerID, rec.UniqueIdentifier, rec.FullName,
		rec.PaymentStatus, rec.StudentStatus, rec.TotalToPay, rec.Cashback,
		rec.StartDueDate, rec.EndDueDate, rec.Semester, rec.EnrollmentYear,
	)
}

// CreatePass inserts a single pass and surfaces duplicates as ErrDuplicatePass.
func (r *PostgresRepository) CreatePass(ctx context.Context, rec domain.NewPass) error {
	query, args, err := insertPassValues(
		r.stbl.Insert("passes").Columns(insertPassColumns), rec,
	).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePass
		}
		return err
	}
	return nil
}

// CreatePasses inserts one chunk of new passes in a single round trip. Rows
// that collide with an existing composite key are skipped via ON CONFLICT DO
// NOTHING; the RETURNING clause reports which keys actually landed so the
// caller can attribute the misses.
func (r *PostgresRepository) CreatePasses(ctx context.Context, recs []domain.NewPass) ([]domain.PassKey, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	sb := r.stbl.Insert("passes").Columns(insertPassColumns)
	for _, rec := range recs {
		sb = insertPassValues(sb, rec)
	}
	sb = sb.Suffix("ON CONFLICT (university_id, career_id, unique_identifier) DO NOTHING RETURNING university_id, career_id, unique_identifier")

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inserted []domain.PassKey
	for rows.Next() {
		var k domain.PassKey
		if err := rows.Scan(&k.UniversityID, &k.CareerID, &k.UniqueIdentifier); err != nil {
			return nil, err
		}
		inserted = append(inserted, k)
	}
	return inserted, rows.Err()
}

func (r *PostgresRepository) updateByKeys(ctx context.Context, keys []domain.PassKey, set map[string]any) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	sb := r.stbl.Update("passes").Where(keyTuplePredicate(keys))
	for column, value := range set {
		sb = sb.Set(column, value)
	}
	sb = sb.Set("updated_at", sq.Expr("NOW()"))

	query, args, err := sb.ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdatePassStatus flips pass_status for one chunk of composite keys.
func (r *PostgresRepository) UpdatePassStatus(ctx context.Context, keys []domain.PassKey, status domain.PassStatus) (int64, error) {
	return r.updateByKeys(ctx, keys, map[string]any{"pass_status": status})
}

// UpdatePaymentStatus flips payment_status for one chunk of composite keys.
func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, keys []domain.PassKey, status domain.PaymentStatus) (int64, error) {
	return r.updateByKeys(ctx, keys, map[string]any{"payment_status": status})
}

// MarkPaid flips payment_status to paid and zeroes total_to_pay in the same
// statement, so the invariant holds atomically per row.
func (r *PostgresRepository) MarkPaid(ctx context.Context, keys []domain.PassKey) (int64, error) {
	return r.updateByKeys(ctx, keys, map[string]any{
		"payment_status": domain.PaymentStatusPaid,
		"total_to_pay":   0,
	})
}

// SetCashback assigns a uniform cashback amount to one chunk of keys.
func (r *PostgresRepository) SetCashback(ctx context.Context, keys []domain.PassKey, cashback int64) (int64, error) {
	return r.updateByKeys(ctx, keys, map[string]any{"cashback": cashback})
}

// IncrementNotificationCounts bumps notification_count and stamps
// last_notification_date for one chunk of keys.
func (r *PostgresRepository) IncrementNotificationCounts(ctx context.Context, keys []domain.PassKey, now time.Time) (int64, error) {
	return r.updateByKeys(ctx, keys, map[string]any{
		"notification_count":     sq.Expr("notification_count + 1"),
		"last_notification_date": now,
	})
}

// ResetNotificationCountsBefore zeroes counters whose last notification is
// older than the cutoff, bounding unbounded growth between runs.
func (r *PostgresRepository) ResetNotificationCountsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE passes
		SET notification_count = 0, updated_at = NOW()
		WHERE notification_count > 0 AND last_notification_date < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LinkWallet records the wallet artifact identifiers issued for a pass.
// Nil arguments leave the corresponding column untouched.
func (r *PostgresRepository) LinkWallet(ctx context.Context, key domain.PassKey, googleObjectID, appleSerialNumber *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE passes
		SET google_wallet_object_id = COALESCE($4, google_wallet_object_id),
		    apple_wallet_serial_number = COALESCE($5, apple_wallet_serial_number),
		    updated_at = NOW()
		WHERE university_id = $1 AND career_id = $2 AND unique_identifier = $3
	`, key.UniversityID, key.CareerID, key.UniqueIdentifier, googleObjectID, appleSerialNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPassNotFound
	}
	return nil
}

// SetInstallationStatus updates the per-provider installation state.
func (r *PostgresRepository) SetInstallationStatus(ctx context.Context, key domain.PassKey, provider domain.WalletProvider, status domain.InstallationStatus) error {
	column := "google_installation_status"
	if provider == domain.WalletProviderApple {
		column = "apple_installation_status"
	}
	query, args, err := r.stbl.Update("passes").
		Set(column, status).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{
			"university_id":     key.UniversityID,
			"career_id":         key.CareerID,
			"unique_identifier": key.UniqueIdentifier,
		}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPassNotFound
	}
	return nil
}

// StageDueUpdates inserts one chunk of per-row new values into the scratch
// table under the given run id.
func (r *PostgresRepository) StageDueUpdates(ctx context.Context, runID uuid.UUID, updates []domain.DueUpdate) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	sb := r.stbl.Insert("pass_due_updates").
		Columns("run_id", "university_id", "career_id", "unique_identifier", "total_to_pay", "end_due_date")
	for _, u := range updates {
		sb = sb.Values(runID, u.Key.UniversityID, u.Key.CareerID, u.Key.UniqueIdentifier, u.TotalToPay, u.EndDueDate)
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ApplyStagedDueUpdates joins the staged rows of one run against passes and
// applies each row's own values in a single UPDATE. The returned keys are the
// passes the update touched; staged rows matching no pass contribute none.
func (r *PostgresRepository) ApplyStagedDueUpdates(ctx context.Context, runID uuid.UUID) ([]domain.PassKey, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE passes p
		SET payment_status = $2,
		    total_to_pay = s.total_to_pay,
		    end_due_date = s.end_due_date,
		    updated_at = NOW()
		FROM pass_due_updates s
		WHERE s.run_id = $1
		  AND p.university_id = s.university_id
		  AND p.career_id = s.career_id
		  AND p.unique_identifier = s.unique_identifier
		RETURNING p.university_id, p.career_id, p.unique_identifier
	`, runID, domain.PaymentStatusDue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.PassKey
	for rows.Next() {
		var key domain.PassKey
		if err := rows.Scan(&key.UniversityID, &key.CareerID, &key.UniqueIdentifier); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ClearStagedDueUpdates drains the scratch rows of one run. Scoping by run id
// keeps a concurrent sibling run's rows intact.
func (r *PostgresRepository) ClearStagedDueUpdates(ctx context.Context, runID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM pass_due_updates WHERE run_id = $1`, runID)
	return err
}
