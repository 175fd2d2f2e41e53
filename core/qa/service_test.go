package qa

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kymoni/elimika/core"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeRepo struct {
	courses      []Course
	plansRaw     interface{}
	plansErr     error
	learners     []LearnerRow
	learnerCalls int

	applyResult  ApplyResult
	applyErr     error
	applyCalls   []ApplySamplesPayload
	applyStarted chan struct{}
	applyRelease chan struct{}
}

func (r *fakeRepo) QueryCourses(page, pageSize int) ([]Course, int, error) {
	if page > 1 {
		return nil, len(r.courses), nil
	}
	return r.courses, len(r.courses), nil
}

func (r *fakeRepo) QuerySamplePlans(courseID string, assessor Assessor) (interface{}, error) {
	return r.plansRaw, r.plansErr
}

func (r *fakeRepo) QueryPlanLearners(planID string, filterApplied bool, search string) ([]LearnerRow, error) {
	r.learnerCalls++
	return r.learners, nil
}

func (r *fakeRepo) ApplySamples(payload ApplySamplesPayload) (ApplyResult, error) {
	r.applyCalls = append(r.applyCalls, payload)
	if r.applyStarted != nil {
		r.applyStarted <- struct{}{}
		<-r.applyRelease
	}
	return r.applyResult, r.applyErr
}

func newTestSession(t *testing.T, repo *fakeRepo, external bool) *Session {
	t.Helper()
	svc := NewService(repo, nopLogger{}, nil)
	s := svc.Session(Assessor{ID: "qa-1", Email: "qa@test.test", External: external})
	s.rng = rand.New(rand.NewSource(1))
	return s
}

func readySession(t *testing.T, repo *fakeRepo) *Session {
	t.Helper()
	s := newTestSession(t, repo, false)
	if err := s.SelectCourse("c1"); err != nil {
		t.Fatalf("SelectCourse() failed: %v", err)
	}
	if err := s.SelectPlan("p1"); err != nil {
		t.Fatalf("SelectPlan() failed: %v", err)
	}
	if err := s.ApplyFilters(Filters{SampleType: "interim", PlannedSampleDate: "2026-09-01"}); err != nil {
		t.Fatalf("ApplyFilters() failed: %v", err)
	}
	return s
}

func planFixture() interface{} {
	return []interface{}{
		map[string]interface{}{"plan_id": "p1", "plan_name": "Plan One"},
		map[string]interface{}{"plan_id": "p2", "plan_name": "Plan Two"},
	}
}

func learnerFixture() []LearnerRow {
	return []LearnerRow{
		{LearnerName: "amina", RiskPercentage: NewRiskPercentage("50"), Units: testUnits(10)},
		{LearnerName: "ben", RiskPercentage: NewRiskPercentage("0"), Units: testUnits(4)},
		{LearnerName: "cela"}, // no units
	}
}

func TestSessionValidationOrder(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(s *Session)
		random  bool
		wantErr string
	}{
		{
			name:    "no plan selected, manual",
			setup:   func(s *Session) { _ = s.SelectCourse("c1") },
			wantErr: errPlanRequired,
		},
		{
			name:    "no plan selected, random",
			setup:   func(s *Session) { _ = s.SelectCourse("c1") },
			random:  true,
			wantErr: errPlanRequired,
		},
		{
			name: "no sample type",
			setup: func(s *Session) {
				_ = s.SelectCourse("c1")
				_ = s.SelectPlan("p1")
				_ = s.ApplyFilters(Filters{})
			},
			wantErr: errSampleTypeRequired,
		},
		{
			name: "random path requires planned sample date",
			setup: func(s *Session) {
				_ = s.SelectCourse("c1")
				_ = s.SelectPlan("p1")
				_ = s.ApplyFilters(Filters{SampleType: "interim"})
			},
			random:  true,
			wantErr: errDateRequired,
		},
		{
			name: "manual path requires a selected unit",
			setup: func(s *Session) {
				_ = s.SelectCourse("c1")
				_ = s.SelectPlan("p1")
				_ = s.ApplyFilters(Filters{SampleType: "interim"})
			},
			wantErr: errNoUnitsSelected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{plansRaw: planFixture(), learners: learnerFixture()}
			s := newTestSession(t, repo, false)
			tt.setup(s)

			var err error
			if tt.random {
				err = s.ApplyRandomSamples()
			} else {
				err = s.ApplyManualSamples()
			}

			if assert.Error(t, err) {
				assert.Equal(t, tt.wantErr, err.Error())
			}
			assert.Equal(t, tt.wantErr, s.State().FilterError())
			assert.Empty(t, repo.applyCalls, "no submission must occur on validation failure")
		})
	}
}

func TestSessionAssessorUnresolvable(t *testing.T) {
	repo := &fakeRepo{plansRaw: planFixture(), learners: learnerFixture()}
	svc := NewService(repo, nopLogger{}, nil)
	s := svc.Session(Assessor{ID: ""})
	_ = s.SelectCourse("c1")
	_ = s.SelectPlan("p1")
	_ = s.ApplyFilters(Filters{SampleType: "interim"})

	err := s.ApplyManualSamples()
	if assert.Error(t, err) {
		assert.Equal(t, errAssessorUnknown, err.Error())
	}
	assert.Empty(t, repo.applyCalls)
}

func TestSessionRandomPathNoLearners(t *testing.T) {
	repo := &fakeRepo{plansRaw: planFixture(), learners: nil}
	s := newTestSession(t, repo, false)
	_ = s.SelectCourse("c1")
	_ = s.SelectPlan("p1")
	_ = s.ApplyFilters(Filters{SampleType: "interim", PlannedSampleDate: "2026-09-01"})

	err := s.ApplyRandomSamples()
	if assert.Error(t, err) {
		assert.Equal(t, errNoLearnersRandom, err.Error())
	}
	assert.Empty(t, repo.applyCalls)
}

func TestSessionApplyManualSuccess(t *testing.T) {
	repo := &fakeRepo{plansRaw: planFixture(), learners: learnerFixture()}
	s := readySession(t, repo)

	s.ToggleUnit(LearnerKey("amina", 0), "U01")
	s.ToggleUnit(LearnerKey("amina", 0), "U04")

	fetchesBefore := repo.learnerCalls
	assert.NoError(t, s.ApplyManualSamples())

	if assert.Len(t, repo.applyCalls, 1) {
		payload := repo.applyCalls[0]
		assert.Equal(t, "p1", payload.PlanID)
		assert.Equal(t, "interim", payload.SampleType)
		assert.Equal(t, "qa-1", payload.AssessorID)
		assert.Equal(t, "2026-09-01", payload.DateFrom)
		if assert.Len(t, payload.Learners, 1) {
			assert.Equal(t, []string{"U01", "U04"}, payload.Learners[0].UnitKeys)
		}
	}
	assert.Empty(t, s.State().FilterError())
	assert.Equal(t, msgManualSuccess, s.State().TakeNotice())
	assert.Equal(t, fetchesBefore+1, repo.learnerCalls, "learners must be refetched after success")
}

func TestSessionApplyManualUsesCollaboratorMessage(t *testing.T) {
	repo := &fakeRepo{
		plansRaw:    planFixture(),
		learners:    learnerFixture(),
		applyResult: ApplyResult{Message: "3 learners queued"},
	}
	s := readySession(t, repo)
	s.ToggleUnit(LearnerKey("amina", 0), "U01")

	assert.NoError(t, s.ApplyManualSamples())
	assert.Equal(t, "3 learners queued", s.State().TakeNotice())
}

func TestSessionApplyRandomSuccess(t *testing.T) {
	repo := &fakeRepo{plansRaw: planFixture(), learners: learnerFixture()}
	s := readySession(t, repo)

	// a manual pick is fully replaced by the sampler output
	s.ToggleUnit(LearnerKey("cela", 2), "ghost-unit")

	assert.NoError(t, s.ApplyRandomSamples())

	if assert.Len(t, repo.applyCalls, 1) {
		payload := repo.applyCalls[0]
		if assert.Len(t, payload.Learners, 2, "the unit-less learner contributes nothing") {
			assert.Len(t, payload.Learners[0].UnitKeys, 5, "50%% of 10 units")
			assert.Len(t, payload.Learners[1].UnitKeys, 1, "0%% risk still floors at one unit")
		}
	}
	assert.Equal(t, msgRandomSuccess, s.State().TakeNotice())
}

func TestSessionApplyFailureMessages(t *testing.T) {
	nested := &SubmissionError{}
	nested.Data.Message = "plan is locked"

	tests := []struct {
		name    string
		err     error
		random  bool
		wantMsg string
	}{
		{name: "nested data.message wins", err: nested, wantMsg: "plan is locked"},
		{name: "top-level message", err: &SubmissionError{Message: "rejected"}, wantMsg: "rejected"},
		{name: "manual default", err: &SubmissionError{}, wantMsg: msgManualFailed},
		{name: "random default", err: &SubmissionError{}, random: true, wantMsg: msgRandomFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{plansRaw: planFixture(), learners: learnerFixture(), applyErr: tt.err}
			s := readySession(t, repo)

			var err error
			if tt.random {
				err = s.ApplyRandomSamples()
			} else {
				s.ToggleUnit(LearnerKey("amina", 0), "U01")
				err = s.ApplyManualSamples()
			}

			assert.Error(t, err)
			assert.Equal(t, tt.wantMsg, s.State().FilterError())
			assert.Equal(t, tt.wantMsg, s.State().TakeNotice())
		})
	}
}

func TestSessionSubmitWhileSubmittingRejected(t *testing.T) {
	repo := &fakeRepo{plansRaw: planFixture(), learners: learnerFixture()}
	s := readySession(t, repo)
	s.ToggleUnit(LearnerKey("amina", 0), "U01")

	s.State().SetSubmitting(true)
	err := s.ApplyManualSamples()
	if assert.Error(t, err) {
		assert.Equal(t, errApplyUnavailable, err.Error())
	}
	assert.Empty(t, repo.applyCalls, "a second submission is rejected, not queued")
}

func TestSessionApplyDuringInFlightSubmissionRejected(t *testing.T) {
	repo := &fakeRepo{
		plansRaw:     planFixture(),
		learners:     learnerFixture(),
		applyStarted: make(chan struct{}),
		applyRelease: make(chan struct{}),
	}
	s := readySession(t, repo)
	s.ToggleUnit(LearnerKey("amina", 0), "U01")

	firstDone := make(chan error, 1)
	go func() { firstDone <- s.ApplyManualSamples() }()
	<-repo.applyStarted

	// the first submission is still in flight; a second apply must be
	// rejected by the guard, not queued behind it
	err := s.ApplyRandomSamples()
	if assert.Error(t, err) {
		assert.Equal(t, errApplyUnavailable, err.Error())
	}

	close(repo.applyRelease)
	assert.NoError(t, <-firstDone)
	assert.Len(t, repo.applyCalls, 1, "only the in-flight submission reaches the collaborator")
}

func TestSessionEQAAutoTrigger(t *testing.T) {
	repo := &fakeRepo{
		courses:  []Course{{ID: "c1", Name: "Fabrication", Ref: "ext-77"}},
		plansRaw: planFixture(),
		learners: learnerFixture(),
	}
	s := newTestSession(t, repo, true)

	assert.NoError(t, s.SelectCourseRef("ext-77"))

	st := s.State()
	assert.Equal(t, "c1", st.CourseID())
	assert.Equal(t, "p1", st.SelectedPlanID(), "first plan auto-selected")
	assert.True(t, st.FilterApplied(), "filters auto-applied")
	assert.Equal(t, PhaseLearnersLoaded, st.Phase())
	assert.Equal(t, 1, repo.learnerCalls, "each auto-step fires once")
}

func TestSessionUnknownCourseRefRejected(t *testing.T) {
	repo := &fakeRepo{courses: []Course{{ID: "c1", Ref: "ext-77"}}, plansRaw: planFixture()}
	s := newTestSession(t, repo, true)

	err := s.SelectCourseRef("nope")
	assert.Error(t, err)
	assert.Empty(t, s.State().CourseID(), "no course is silently accepted")
	assert.Equal(t, errUnknownCourseRef, s.State().TakeNotice())
}

func TestSessionIQANoAutoTrigger(t *testing.T) {
	repo := &fakeRepo{plansRaw: planFixture(), learners: learnerFixture()}
	s := newTestSession(t, repo, false)

	assert.NoError(t, s.SelectCourse("c1"))
	st := s.State()
	assert.Empty(t, st.SelectedPlanID(), "internal assessors pick plans themselves")
	assert.False(t, st.FilterApplied())
	assert.Zero(t, repo.learnerCalls)
}

func TestSessionPlanFetchDegradesToEmpty(t *testing.T) {
	repo := &fakeRepo{plansRaw: map[string]interface{}{"unexpected": true}}
	s := newTestSession(t, repo, false)

	assert.NoError(t, s.SelectCourse("c1"))
	assert.Empty(t, s.State().Plans(), "unknown shapes mean no plans, not a failure")
}

func TestSessionNotifiesAssessorOnSuccess(t *testing.T) {
	repo := &fakeRepo{plansRaw: planFixture(), learners: learnerFixture()}
	mailSvc := &captureMail{}
	svc := NewService(repo, nopLogger{}, mailSvc)
	s := svc.Session(Assessor{ID: "qa-1", Email: "qa@test.test"})
	_ = s.SelectCourse("c1")
	_ = s.SelectPlan("p1")
	_ = s.ApplyFilters(Filters{SampleType: "interim"})
	s.ToggleUnit(LearnerKey("amina", 0), "U01")

	assert.NoError(t, s.ApplyManualSamples())
	if assert.Len(t, mailSvc.sent, 1) {
		assert.Equal(t, "qa@test.test", mailSvc.sent[0].To[0].Address)
	}
}

type captureMail struct {
	sent []*core.EmailMessage
}

func (m *captureMail) SendMessages(messages ...*core.EmailMessage) {
	m.sent = append(m.sent, messages...)
}
