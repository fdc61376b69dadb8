package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ziadkadry99/perfreview/internal/db"
	"github.com/ziadkadry99/perfreview/internal/orgstructure"
	"github.com/ziadkadry99/perfreview/internal/telemetry"
)

type fixture struct {
	db      *db.DB
	org     *orgstructure.Store
	store   *Store
	engine  *Engine
	metrics *telemetry.Metrics
	cycle   *Cycle
	seq     int
}

func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	f := &fixture{
		db:      database,
		org:     orgstructure.NewStore(database),
		store:   NewStore(database),
		metrics: telemetry.NewTestMetrics(),
	}
	f.engine = NewEngine(f.store, f.org, zap.NewNop(), f.metrics)

	f.cycle = &Cycle{
		Name:     "2025 H1",
		StartsOn: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndsOn:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.engine.CreateCycle(context.Background(), f.cycle))
	return f
}

func (f *fixture) user(t *testing.T, name, managerID string) *orgstructure.User {
	t.Helper()
	u := &orgstructure.User{Name: name, Email: name + "@example.com", ManagerID: managerID, IsActive: true}
	require.NoError(t, f.org.CreateUser(context.Background(), u, ""))
	return u
}

// review assigns a fresh review of a new employee E to manager M. When
// withSkipLevel is set, M reports to SM.
func (f *fixture) review(t *testing.T, withSkipLevel bool) (*Review, string) {
	t.Helper()
	f.seq++
	var skip string
	if withSkipLevel {
		skip = f.user(t, fmt.Sprintf("sm%d", f.seq), "").ID
	}
	m := f.user(t, fmt.Sprintf("m%d", f.seq), skip)
	e := f.user(t, fmt.Sprintf("e%d", f.seq), m.ID)

	r, err := f.engine.Assign(context.Background(), e.ID, m.ID, f.cycle.ID)
	require.NoError(t, err)
	return r, skip
}

func TestTransitionTable(t *testing.T) {
	events := []Event{EventSelfSubmitted, EventManagerSubmitted, EventShared, EventAcknowledged, EventApproved}

	assert.True(t, Accepts(StatusSelfReview, EventSelfSubmitted))
	assert.True(t, Accepts(StatusSelfReview, EventManagerSubmitted))
	assert.True(t, Accepts(StatusManagerReview, EventSelfSubmitted))
	assert.True(t, Accepts(StatusReadyToShare, EventShared))
	assert.True(t, Accepts(StatusShared, EventAcknowledged))
	assert.True(t, Accepts(StatusPendingApproval, EventApproved))

	for _, ev := range events {
		assert.False(t, Accepts(StatusCalibrated, ev), "CALIBRATED must not accept %s", ev)
		assert.False(t, Accepts(StatusCompleted, ev), "COMPLETED must not accept %s", ev)
		assert.False(t, Accepts(StatusAcknowledged, ev), "ACKNOWLEDGED is never at rest")
	}
	assert.False(t, Accepts(StatusShared, EventApproved))
	assert.False(t, Accepts(StatusSelfReview, EventShared))
}

func TestApplyLeavesReviewUntouchedOnRejection(t *testing.T) {
	r := &Review{ID: "r1", Status: StatusPendingApproval}
	err := apply(r, EventApproved, transitionInput{now: time.Now()})

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, ErrPreconditionViolation)
	assert.Equal(t, StatusPendingApproval, r.Status)
	assert.Nil(t, r.SkipLevelApprovedAt)
}

func TestSubmissionsCommute(t *testing.T) {
	ctx := context.Background()

	t.Run("self then manager", func(t *testing.T) {
		f := setup(t)
		r, _ := f.review(t, false)

		got, err := f.engine.SubmitSelfReview(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusManagerReview, got.Status)

		got, err = f.engine.SubmitManagerReview(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusReadyToShare, got.Status)
	})

	t.Run("manager then self", func(t *testing.T) {
		f := setup(t)
		r, _ := f.review(t, false)

		got, err := f.engine.SubmitManagerReview(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusManagerReview, got.Status)

		got, err = f.engine.SubmitSelfReview(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusReadyToShare, got.Status)
	})
}

func TestConcurrentSubmissionsReachReadyToShare(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const n = 25
	reviews := make([]*Review, n)
	for i := range reviews {
		reviews[i], _ = f.review(t, false)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for _, r := range reviews {
		id := r.ID
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.engine.SubmitSelfReview(ctx, id); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := f.engine.SubmitManagerReview(ctx, id); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("submission failed: %v", err)
	}

	for _, r := range reviews {
		got, err := f.store.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusReadyToShare, got.Status, "review %s", r.ID)
		assert.NotNil(t, got.SelfSubmittedAt)
		assert.NotNil(t, got.ManagerSubmittedAt)
		assert.Equal(t, 3, got.Version)
	}
	assert.Equal(t, float64(n), testutil.ToFloat64(f.metrics.ReviewTransitions.WithLabelValues(string(EventSelfSubmitted), string(StatusReadyToShare)))+
		testutil.ToFloat64(f.metrics.ReviewTransitions.WithLabelValues(string(EventManagerSubmitted), string(StatusReadyToShare))))
}

func TestConcurrentEnginesShareOneDatabase(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other := NewEngine(NewStore(f.db), f.org, zap.NewNop(), telemetry.NewTestMetrics())

	const n = 20
	reviews := make([]*Review, n)
	for i := range reviews {
		reviews[i], _ = f.review(t, false)
	}

	var wg sync.WaitGroup
	for _, r := range reviews {
		id := r.ID
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.engine.SubmitSelfReview(ctx, id)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := other.SubmitManagerReview(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, r := range reviews {
		got, err := f.store.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusReadyToShare, got.Status)
	}
}

func TestRepeatedSubmissionSucceedsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r, _ := f.review(t, false)

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.SubmitSelfReview(ctx, r.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ErrPreconditionViolation) {
				fail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, fail)
	assert.Equal(t, 0, f.engine.locks.size())
}

func TestScenarioWithoutSkipLevel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r, _ := f.review(t, false)

	got, err := f.engine.SubmitSelfReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusManagerReview, got.Status)

	got, err = f.engine.SubmitManagerReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReadyToShare, got.Status)

	got, err = f.engine.ShareReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusShared, got.Status)
	assert.NotNil(t, got.SharedAt)

	got, err = f.engine.AcknowledgeReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.True(t, got.AutoApproved)
	assert.NotNil(t, got.AcknowledgedAt)
	assert.Nil(t, got.SkipLevelApprovedAt)
	assert.Empty(t, got.SkipLevelApproverID)

	stored, err := f.store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.True(t, stored.AutoApproved)
}

func TestScenarioWithSkipLevel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r, skip := f.review(t, true)

	_, err := f.engine.SubmitSelfReview(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.engine.SubmitManagerReview(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.engine.ShareReview(ctx, r.ID)
	require.NoError(t, err)

	got, err := f.engine.AcknowledgeReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, got.Status)
	assert.False(t, got.AutoApproved)

	got, err = f.engine.ApproveReview(ctx, r.ID, skip)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, skip, got.SkipLevelApproverID)
	assert.NotNil(t, got.SkipLevelApprovedAt)

	stored, err := f.store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, skip, stored.SkipLevelApproverID)
	assert.False(t, stored.AutoApproved)
}

func TestPreconditionViolations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r, _ := f.review(t, false)

	_, err := f.engine.ApproveReview(ctx, r.ID, "someone")
	assert.ErrorIs(t, err, ErrPreconditionViolation)

	_, err = f.engine.ShareReview(ctx, r.ID)
	assert.ErrorIs(t, err, ErrPreconditionViolation)

	_, err = f.engine.AcknowledgeReview(ctx, r.ID)
	assert.ErrorIs(t, err, ErrPreconditionViolation)

	_, err = f.engine.SubmitSelfReview(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.engine.SubmitSelfReview(ctx, r.ID)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusManagerReview, te.From)
	assert.Equal(t, EventSelfSubmitted, te.Event)

	_, err = f.engine.SubmitSelfReview(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := f.store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusManagerReview, stored.Status)
	assert.Equal(t, 2, stored.Version)
}

func TestApproveRequiresApprover(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r, _ := f.review(t, true)

	for _, step := range []func(context.Context, string) (*Review, error){
		f.engine.SubmitSelfReview, f.engine.SubmitManagerReview, f.engine.ShareReview, f.engine.AcknowledgeReview,
	} {
		_, err := step(ctx, r.ID)
		require.NoError(t, err)
	}

	_, err := f.engine.ApproveReview(ctx, r.ID, "")
	assert.ErrorIs(t, err, ErrPreconditionViolation)
}

func TestCalibratedIsTerminalAndUnreachable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r, _ := f.review(t, false)

	_, err := f.db.ExecContext(ctx, `UPDATE reviews SET status = 'CALIBRATED' WHERE id = ?`, r.ID)
	require.NoError(t, err)

	for _, fn := range []func(context.Context, string) (*Review, error){
		f.engine.SubmitSelfReview, f.engine.SubmitManagerReview, f.engine.ShareReview, f.engine.AcknowledgeReview,
	} {
		_, err := fn(ctx, r.ID)
		assert.ErrorIs(t, err, ErrPreconditionViolation)
	}
}

func TestSaveDraft(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r, _ := f.review(t, false)

	summary := "Shipped the billing rewrite"
	rating := 4
	got, err := f.engine.SaveDraft(ctx, r.ID, Draft{
		SelfSummary: &summary,
		SelfRating:  &rating,
		Reflections: []byte(`{"proudOf":"billing"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, summary, got.SelfSummary)
	require.NotNil(t, got.SelfRating)
	assert.Equal(t, 4, *got.SelfRating)

	stored, err := f.store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"proudOf":"billing"}`, string(stored.Reflections))
	assert.JSONEq(t, `{}`, string(stored.Competencies))

	_, err = f.engine.SubmitSelfReview(ctx, r.ID)
	require.NoError(t, err)

	_, err = f.engine.SaveDraft(ctx, r.ID, Draft{SelfSummary: &summary})
	assert.ErrorIs(t, err, ErrPreconditionViolation)

	mgr := "Strong half"
	got, err = f.engine.SaveDraft(ctx, r.ID, Draft{ManagerSummary: &mgr})
	require.NoError(t, err)
	assert.Equal(t, mgr, got.ManagerSummary)
	assert.Equal(t, StatusManagerReview, got.Status)
}

func TestAssign(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.user(t, "mgr", "")
	e := f.user(t, "emp", m.ID)

	r, err := f.engine.Assign(ctx, e.ID, m.ID, f.cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSelfReview, r.Status)
	assert.Equal(t, 1, r.Version)

	_, err = f.engine.Assign(ctx, e.ID, m.ID, f.cycle.ID)
	assert.ErrorIs(t, err, ErrPreconditionViolation)

	_, err = f.engine.Assign(ctx, e.ID, e.ID, f.cycle.ID)
	assert.ErrorIs(t, err, ErrPreconditionViolation)

	_, err = f.engine.Assign(ctx, e.ID, m.ID, "no-such-cycle")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := f.store.List(ctx, Filter{ReviewerID: m.ID})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateCycleValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	err := f.engine.CreateCycle(ctx, &Cycle{Name: "", StartsOn: start, EndsOn: start.AddDate(0, 6, 0)})
	assert.ErrorIs(t, err, ErrPreconditionViolation)

	err = f.engine.CreateCycle(ctx, &Cycle{Name: "backwards", StartsOn: start, EndsOn: start.AddDate(0, -1, 0)})
	assert.ErrorIs(t, err, ErrPreconditionViolation)

	cycles, err := f.engine.ListCycles(ctx)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, CycleDraft, cycles[0].Status)
}

func TestLaunchCycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ceo := f.user(t, "ceo", "")
	vp := f.user(t, "vp", ceo.ID)
	f.user(t, "dev", vp.ID)
	inactive := f.user(t, "gone", vp.ID)
	off := false
	_, err := f.org.UpdateUser(ctx, inactive.ID, orgstructure.UserPatch{IsActive: &off})
	require.NoError(t, err)

	res, err := f.engine.LaunchCycle(ctx, f.cycle.ID)
	require.NoError(t, err)
	assert.Len(t, res.Assigned, 2)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, CycleActive, res.Cycle.Status)

	reviews, err := f.store.List(ctx, Filter{CycleID: f.cycle.ID})
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	for _, r := range reviews {
		assert.Equal(t, StatusSelfReview, r.Status)
		assert.NotEqual(t, ceo.ID, r.RevieweeID)
	}

	f.user(t, "newhire", vp.ID)
	res, err = f.engine.LaunchCycle(ctx, f.cycle.ID)
	require.NoError(t, err)
	assert.Len(t, res.Assigned, 1)
	assert.Equal(t, 2, res.Skipped)

	fields := res.AuditFields()
	assert.Equal(t, "ACTIVE", fields["status"])
	assert.Equal(t, 1, fields["assigned"])

	_, err = f.db.ExecContext(ctx, `UPDATE review_cycles SET status = 'CLOSED' WHERE id = ?`, f.cycle.ID)
	require.NoError(t, err)
	_, err = f.engine.LaunchCycle(ctx, f.cycle.ID)
	assert.ErrorIs(t, err, ErrPreconditionViolation)
}

func TestReviewFieldsMatchSnapshotKeys(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	rating := 3
	r := &Review{ID: "r1", RevieweeID: "e", ReviewerID: "m", CycleID: "c", Status: StatusShared, SelfRating: &rating, SharedAt: &now}

	f := r.Fields()
	assert.Equal(t, "SHARED", f["status"])
	assert.Equal(t, int64(3), f["selfRating"])
	assert.Equal(t, "2025-03-01T09:30:00Z", f["sharedAt"])
	assert.Nil(t, f["acknowledgedAt"])
	assert.Nil(t, f["skipLevelApproverId"])
	assert.Equal(t, false, f["autoApproved"])
}
