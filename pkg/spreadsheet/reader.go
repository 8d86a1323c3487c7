/**
 * @description
 * Thin boundary adapter turning an uploaded workbook into a batch of new pass
 * records. The first row must be the canonical header; one record per data
 * row. Anything beyond flat cell extraction (templating, styling, formula
 * evaluation) belongs to the upstream spreadsheet collaborator, not here.
 *
 * @dependencies
 * - github.com/xuri/excelize/v2: XLSX parsing.
 */
package spreadsheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/campuspass/pass-service/internal/domain"
)

// header is the expected first row, in order.
var header = []string{
	"university_id", "career_id", "unique_identifier", "full_name",
	"payment_status", "student_status", "total_to_pay", "cashback",
	"start_due_date", "end_due_date", "semester", "enrollment_year",
}

const dateLayout = "2006-01-02"

// ReadPassBatch parses the first sheet of an XLSX workbook into new pass
// records. Rows are not domain-validated here; the ingestion pipeline reports
// per-record validation failures so they stay correlated to source rows.
func ReadPassBatch(r io.Reader) ([]domain.NewPass, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	if err := checkHeader(rows[0]); err != nil {
		return nil, err
	}

	records := make([]domain.NewPass, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			// +2: 1-based rows plus the header.
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func checkHeader(row []string) error {
	if len(row) < len(header) {
		return fmt.Errorf("header has %d columns, want %d", len(row), len(header))
	}
	for i, want := range header {
		if !strings.EqualFold(strings.TrimSpace(row[i]), want) {
			return fmt.Errorf("header column %d is %q, want %q", i+1, row[i], want)
		}
	}
	return nil
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseRow(row []string) (domain.NewPass, error) {
	var rec domain.NewPass
	var err error

	if rec.UniversityID, err = uuid.Parse(cell(row, 0)); err != nil {
		return rec, fmt.Errorf("university_id: %w", err)
	}
	if rec.CareerID, err = uuid.Parse(cell(row, 1)); err != nil {
		return rec, fmt.Errorf("career_id: %w", err)
	}
	rec.UniqueIdentifier = cell(row, 2)
	rec.FullName = cell(row, 3)
	rec.PaymentStatus = domain.PaymentStatus(strings.ToLower(cell(row, 4)))
	rec.StudentStatus = domain.StudentStatus(strings.ToLower(cell(row, 5)))

	if rec.TotalToPay, err = parseCents(cell(row, 6)); err != nil {
		return rec, fmt.Errorf("total_to_pay: %w", err)
	}
	if rec.Cashback, err = parseCents(cell(row, 7)); err != nil {
		return rec, fmt.Errorf("cashback: %w", err)
	}
	if rec.StartDueDate, err = time.Parse(dateLayout, cell(row, 8)); err != nil {
		return rec, fmt.Errorf("start_due_date: %w", err)
	}
	if rec.EndDueDate, err = time.Parse(dateLayout, cell(row, 9)); err != nil {
		return rec, fmt.Errorf("end_due_date: %w", err)
	}
	if rec.Semester, err = strconv.Atoi(cell(row, 10)); err != nil {
		return rec, fmt.Errorf("semester: %w", err)
	}
	if rec.EnrollmentYear, err = strconv.Atoi(cell(row, 11)); err != nil {
		return rec, fmt.Errorf("enrollment_year: %w", err)
	}
	return rec, nil
}

// parseCents reads a decimal amount in whole currency units into cents,
// without going through floating point.
func parseCents(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("more than two decimal places in %q", s)
	}
	frac = frac + strings.Repeat("0", 2-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if w < 0 || strings.HasPrefix(whole, "-") {
		return w*100 - f, nil
	}
	return w*100 + f, nil
}
