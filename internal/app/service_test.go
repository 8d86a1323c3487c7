package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campuspass/pass-service/internal/domain"
	"github.com/campuspass/pass-service/internal/store"
	"github.com/campuspass/pass-service/pkg/rabbitmq"
)

// passRepoStub implements store.Repository through overridable function
// fields; unset methods panic via the embedded nil interface.
type passRepoStub struct {
	store.Repository

	listPasses      func(ctx context.Context, universityID uuid.UUID, spec domain.FilterSpec, limit, offset int) ([]domain.Pass, error)
	countPasses     func(ctx context.Context, universityID uuid.UUID, spec domain.FilterSpec) (int64, error)
	findByKeys      func(ctx context.Context, keys []domain.PassKey) ([]domain.Pass, error)
	countDue        func(ctx context.Context, from, to time.Time, requireWallet bool) (int64, error)
	listDue         func(ctx context.Context, from, to time.Time, requireWallet bool, limit, offset int) ([]domain.Pass, error)
	createPass      func(ctx context.Context, rec domain.NewPass) error
	createPasses    func(ctx context.Context, recs []domain.NewPass) ([]domain.PassKey, error)
	updateStatus    func(ctx context.Context, keys []domain.PassKey, status domain.PassStatus) (int64, error)
	updatePayment   func(ctx context.Context, keys []domain.PassKey, status domain.PaymentStatus) (int64, error)
	markPaid        func(ctx context.Context, keys []domain.PassKey) (int64, error)
	setCashback     func(ctx context.Context, keys []domain.PassKey, cashback int64) (int64, error)
	incrementNotifs func(ctx context.Context, keys []domain.PassKey, now time.Time) (int64, error)
	stageDue        func(ctx context.Context, runID uuid.UUID, updates []domain.DueUpdate) (int64, error)
	applyStagedDue  func(ctx context.Context, runID uuid.UUID) ([]domain.PassKey, error)
	clearStagedDue  func(ctx context.Context, runID uuid.UUID) error
	setInstallation func(ctx context.Context, key domain.PassKey, provider domain.WalletProvider, status domain.InstallationStatus) error
}

func (s *passRepoStub) ListPasses(ctx context.Context, universityID uuid.UUID, spec domain.FilterSpec, limit, offset int) ([]domain.Pass, error) {
	return s.listPasses(ctx, universityID, spec, limit, offset)
}

func (s *passRepoStub) CountPasses(ctx context.Context, universityID uuid.UUID, spec domain.FilterSpec) (int64, error) {
	return s.countPasses(ctx, universityID, spec)
}

func (s *passRepoStub) FindPassesByKeys(ctx context.Context, keys []domain.PassKey) ([]domain.Pass, error) {
	return s.findByKeys(ctx, keys)
}

func (s *passRepoStub) CountDueBetween(ctx context.Context, from, to time.Time, requireWallet bool) (int64, error) {
	return s.countDue(ctx, from, to, requireWallet)
}

func (s *passRepoStub) ListDueBetween(ctx context.Context, from, to time.Time, requireWallet bool, limit, offset int) ([]domain.Pass, error) {
	return s.listDue(ctx, from, to, requireWallet, limit, offset)
}

func (s *passRepoStub) CreatePass(ctx context.Context, rec domain.NewPass) error {
	return s.createPass(ctx, rec)
}

func (s *passRepoStub) CreatePasses(ctx context.Context, recs []domain.NewPass) ([]domain.PassKey, error) {
	return s.createPasses(ctx, recs)
}

func (s *passRepoStub) UpdatePassStatus(ctx context.Context, keys []domain.PassKey, status domain.PassStatus) (int64, error) {
	return s.updateStatus(ctx, keys, status)
}

func (s *passRepoStub) UpdatePaymentStatus(ctx context.Context, keys []domain.PassKey, status domain.PaymentStatus) (int64, error) {
	return s.updatePayment(ctx, keys, status)
}

func (s *passRepoStub) MarkPaid(ctx context.Context, keys []domain.PassKey) (int64, error) {
	return s.markPaid(ctx, keys)
}

func (s *passRepoStub) SetCashback(ctx context.Context, keys []domain.PassKey, cashback int64) (int64, error) {
	return s.setCashback(ctx, keys, cashback)
}

func (s *passRepoStub) IncrementNotificationCounts(ctx context.Context, keys []domain.PassKey, now time.Time) (int64, error) {
	return s.incrementNotifs(ctx, keys, now)
}

func (s *passRepoStub) StageDueUpdates(ctx context.Context, runID uuid.UUID, updates []domain.DueUpdate) (int64, error) {
	return s.stageDue(ctx, runID, updates)
}

func (s *passRepoStub) ApplyStagedDueUpdates(ctx context.Context, runID uuid.UUID) ([]domain.PassKey, error) {
	return s.applyStagedDue(ctx, runID)
}

func (s *passRepoStub) ClearStagedDueUpdates(ctx context.Context, runID uuid.UUID) error {
	return s.clearStagedDue(ctx, runID)
}

func (s *passRepoStub) SetInstallationStatus(ctx context.Context, key domain.PassKey, provider domain.WalletProvider, status domain.InstallationStatus) error {
	return s.setInstallation(ctx, key, provider, status)
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	events []rabbitmq.PassEvent
}

func (p *recordingPublisher) PublishPassEvent(_ context.Context, event rabbitmq.PassEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo store.Repository) *Service {
	return NewService(repo, &recordingPublisher{}, NewLocalBulkGuard(), testLogger(), 10, 4, 25)
}

func makeKeys(n int) []domain.PassKey {
	universityID, careerID := uuid.New(), uuid.New()
	keys := make([]domain.PassKey, n)
	for i := range keys {
		keys[i] = domain.PassKey{UniversityID: universityID, CareerID: careerID, UniqueIdentifier: uuid.NewString()}
	}
	return keys
}

func validNewPass(key domain.PassKey) domain.NewPass {
	return domain.NewPass{
		UniversityID:     key.UniversityID,
		CareerID:         key.CareerID,
		UniqueIdentifier: key.UniqueIdentifier,
		FullName:         "Ada Lovelace",
		PaymentStatus:    domain.PaymentStatusDue,
		StudentStatus:    domain.StudentStatusActive,
		TotalToPay:       150000,
		StartDueDate:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDueDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Semester:         2,
		EnrollmentYear:   2024,
	}
}

func TestQueryPassesRunsListAndCountTogether(t *testing.T) {
	universityID := uuid.New()
	wantPasses := []domain.Pass{{UniversityID: universityID, UniqueIdentifier: "A-1"}}

	var gotLimit, gotOffset int
	repo := &passRepoStub{
		listPasses: func(ctx context.Context, u uuid.UUID, spec domain.FilterSpec, limit, offset int) ([]domain.Pass, error) {
			gotLimit, gotOffset = limit, offset
			return wantPasses, nil
		},
		countPasses: func(ctx context.Context, u uuid.UUID, spec domain.FilterSpec) (int64, error) {
			return 41, nil
		},
	}

	page, err := newTestService(repo).QueryPasses(context.Background(), universityID, domain.FilterSpec{}, 2, 20)
	if err != nil {
		t.Fatalf("QueryPasses returned error: %v", err)
	}
	if gotLimit != 20 || gotOffset != 40 {
		t.Fatalf("expected limit=20 offset=40, got limit=%d offset=%d", gotLimit, gotOffset)
	}
	if page.Total != 41 || page.Page != 2 || page.Size != 20 {
		t.Fatalf("unexpected page envelope: %+v", page)
	}
	if len(page.Content) != 1 || page.Content[0].UniqueIdentifier != "A-1" {
		t.Fatalf("unexpected page content: %+v", page.Content)
	}
}

func TestQueryPassesRejectsBadPagination(t *testing.T) {
	svc := newTestService(&passRepoStub{})

	if _, err := svc.QueryPasses(context.Background(), uuid.New(), domain.FilterSpec{}, -1, 10); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage, got %v", err)
	}
	if _, err := svc.QueryPasses(context.Background(), uuid.New(), domain.FilterSpec{}, 0, 0); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}

func TestQueryPassesRejectsMalformedFilter(t *testing.T) {
	svc := newTestService(&passRepoStub{})
	spec := domain.FilterSpec{
		Careers: &domain.SetFilter[uuid.UUID]{Type: "sideways", Values: []uuid.UUID{uuid.New()}},
	}
	if _, err := svc.QueryPasses(context.Background(), uuid.New(), spec, 0, 10); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestExportPassesRequestsUnboundedList(t *testing.T) {
	var gotLimit int
	repo := &passRepoStub{
		listPasses: func(ctx context.Context, u uuid.UUID, spec domain.FilterSpec, limit, offset int) ([]domain.Pass, error) {
			gotLimit = limit
			return make([]domain.Pass, 3), nil
		},
	}
	passes, err := newTestService(repo).ExportPasses(context.Background(), uuid.New(), domain.FilterSpec{})
	if err != nil {
		t.Fatalf("ExportPasses returned error: %v", err)
	}
	if gotLimit != 0 {
		t.Fatalf("expected unbounded list (limit 0), got %d", gotLimit)
	}
	if len(passes) != 3 {
		t.Fatalf("expected 3 passes, got %d", len(passes))
	}
}

func TestFindPassesByKeysChunksAndPreservesOrder(t *testing.T) {
	keys := makeKeys(25)

	var calls atomic.Int32
	repo := &passRepoStub{
		findByKeys: func(ctx context.Context, part []domain.PassKey) ([]domain.Pass, error) {
			calls.Add(1)
			out := make([]domain.Pass, len(part))
			for i, k := range part {
				out[i] = domain.Pass{UniversityID: k.UniversityID, CareerID: k.CareerID, UniqueIdentifier: k.UniqueIdentifier}
			}
			return out, nil
		},
	}

	passes, err := newTestService(repo).FindPassesByKeys(context.Background(), keys)
	if err != nil {
		t.Fatalf("FindPassesByKeys returned error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 chunk lookups for 25 keys at size 10, got %d", got)
	}
	if len(passes) != len(keys) {
		t.Fatalf("expected %d passes, got %d", len(keys), len(passes))
	}
	for i, p := range passes {
		if p.UniqueIdentifier != keys[i].UniqueIdentifier {
			t.Fatalf("pass %d out of order: got %s want %s", i, p.UniqueIdentifier, keys[i].UniqueIdentifier)
		}
	}
}

func TestCreatePassPublishesCreatedEvent(t *testing.T) {
	rec := validNewPass(makeKeys(1)[0])

	repo := &passRepoStub{
		createPass: func(ctx context.Context, r domain.NewPass) error { return nil },
	}
	publisher := &recordingPublisher{}
	svc := NewService(repo, publisher, NewLocalBulkGuard(), testLogger(), 10, 4, 25)

	if err := svc.CreatePass(context.Background(), rec); err != nil {
		t.Fatalf("CreatePass returned error: %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Kind != rabbitmq.PassEventCreated {
		t.Fatalf("expected kind %s, got %s", rabbitmq.PassEventCreated, event.Kind)
	}
	if event.Key != rec.Key() {
		t.Fatalf("event key mismatch: %+v", event.Key)
	}
}

func TestCreatePassDoesNotPublishOnDuplicate(t *testing.T) {
	rec := validNewPass(makeKeys(1)[0])

	repo := &passRepoStub{
		createPass: func(ctx context.Context, r domain.NewPass) error { return store.ErrDuplicatePass },
	}
	publisher := &recordingPublisher{}
	svc := NewService(repo, publisher, NewLocalBulkGuard(), testLogger(), 10, 4, 25)

	if err := svc.CreatePass(context.Background(), rec); !errors.Is(err, store.ErrDuplicatePass) {
		t.Fatalf("expected ErrDuplicatePass, got %v", err)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no events on failed create, got %d", len(publisher.events))
	}
}

func TestDayWindowIsHalfOpenUTC(t *testing.T) {
	now := time.Date(2026, 8, 31, 17, 45, 12, 0, time.FixedZone("X", 2*3600))
	from, to := dayWindow(now, 3)

	if from.Location() != time.UTC {
		t.Fatalf("expected UTC window, got %v", from.Location())
	}
	if from.Hour() != 0 || from.Minute() != 0 || from.Second() != 0 {
		t.Fatalf("expected midnight-aligned start, got %v", from)
	}
	if !to.Equal(from.AddDate(0, 0, 1)) {
		t.Fatalf("expected one-day window, got from=%v to=%v", from, to)
	}
}

func TestDueInDaysRequiresInstalledWallet(t *testing.T) {
	var sawRequireWallet bool
	repo := &passRepoStub{
		countDue: func(ctx context.Context, from, to time.Time, requireWallet bool) (int64, error) {
			sawRequireWallet = requireWallet
			return 0, nil
		},
	}
	if _, err := newTestService(repo).DueInDays(context.Background(), 3); err != nil {
		t.Fatalf("DueInDays returned error: %v", err)
	}
	if !sawRequireWallet {
		t.Fatal("expected DueInDays to demand an installed wallet")
	}
}

func TestDueInDaysRejectsNegativeOffset(t *testing.T) {
	if _, err := newTestService(&passRepoStub{}).DueInDays(context.Background(), -1); err == nil {
		t.Fatal("expected error for negative offset")
	}
}

func TestExpiredYesterdayScansWithoutWalletRequirement(t *testing.T) {
	var gotFrom, gotTo time.Time
	var sawRequireWallet bool
	repo := &passRepoStub{
		countDue: func(ctx context.Context, from, to time.Time, requireWallet bool) (int64, error) {
			gotFrom, gotTo, sawRequireWallet = from, to, requireWallet
			return 0, nil
		},
	}
	if _, err := newTestService(repo).ExpiredYesterday(context.Background()); err != nil {
		t.Fatalf("ExpiredYesterday returned error: %v", err)
	}
	if sawRequireWallet {
		t.Fatal("overdue detection must include passes without wallets")
	}
	if !gotTo.Equal(gotFrom.AddDate(0, 0, 1)) {
		t.Fatalf("expected one-day window, got from=%v to=%v", gotFrom, gotTo)
	}
	if !gotTo.After(time.Now().UTC().AddDate(0, 0, -1)) {
		t.Fatalf("window end should be today's midnight, got %v", gotTo)
	}
}

func TestScanDueWindowPaginatesByScanPageSize(t *testing.T) {
	const total = 60
	var fetches atomic.Int32
	repo := &passRepoStub{
		countDue: func(ctx context.Context, from, to time.Time, requireWallet bool) (int64, error) {
			return total, nil
		},
		listDue: func(ctx context.Context, from, to time.Time, requireWallet bool, limit, offset int) ([]domain.Pass, error) {
			fetches.Add(1)
			if limit != 25 {
				t.Errorf("expected page size 25, got %d", limit)
			}
			n := limit
			if offset+n > total {
				n = total - offset
			}
			return make([]domain.Pass, n), nil
		},
	}

	passes, err := newTestService(repo).DueInDays(context.Background(), 0)
	if err != nil {
		t.Fatalf("DueInDays returned error: %v", err)
	}
	if len(passes) != total {
		t.Fatalf("expected %d passes, got %d", total, len(passes))
	}
	if got := fetches.Load(); got != 3 {
		t.Fatalf("expected 3 page fetches for 60 rows at size 25, got %d", got)
	}
}

func TestQueryPagesCoverExactlyTheExportSet(t *testing.T) {
	universityID := uuid.New()
	keys := makeKeys(23)
	dataset := make([]domain.Pass, len(keys))
	for i, k := range keys {
		dataset[i] = domain.Pass{UniversityID: k.UniversityID, CareerID: k.CareerID, UniqueIdentifier: k.UniqueIdentifier}
	}

	repo := &passRepoStub{
		listPasses: func(_ context.Context, _ uuid.UUID, _ domain.FilterSpec, limit, offset int) ([]domain.Pass, error) {
			if limit == 0 {
				return append([]domain.Pass(nil), dataset...), nil
			}
			if offset >= len(dataset) {
				return nil, nil
			}
			end := offset + limit
			if end > len(dataset) {
				end = len(dataset)
			}
			return append([]domain.Pass(nil), dataset[offset:end]...), nil
		},
		countPasses: func(context.Context, uuid.UUID, domain.FilterSpec) (int64, error) {
			return int64(len(dataset)), nil
		},
	}
	svc := newTestService(repo)

	exported, err := svc.ExportPasses(context.Background(), universityID, domain.FilterSpec{})
	if err != nil {
		t.Fatalf("ExportPasses returned error: %v", err)
	}

	seen := make(map[domain.PassKey]int)
	for page := 0; ; page++ {
		res, err := svc.QueryPasses(context.Background(), universityID, domain.FilterSpec{}, page, 5)
		if err != nil {
			t.Fatalf("QueryPasses page %d returned error: %v", page, err)
		}
		if len(res.Content) == 0 {
			break
		}
		for _, p := range res.Content {
			seen[p.Key()]++
		}
	}

	if len(seen) != len(exported) {
		t.Fatalf("pages cover %d distinct passes, export has %d", len(seen), len(exported))
	}
	for _, p := range exported {
		if seen[p.Key()] != 1 {
			t.Fatalf("pass %s appears %d times across pages", p.Key(), seen[p.Key()])
		}
	}
}
