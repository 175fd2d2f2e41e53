package qa

import (
	"fmt"
	"math/rand"
	"net/mail"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kymoni/elimika/core"
)

// User-facing strings surfaced through the filter error and notices.
const (
	errPlanRequired       = "Please select a plan before applying samples."
	errSampleTypeRequired = "Please select a sample type before applying samples."
	errAssessorUnknown    = "Unable to determine current user. Please re-login and try again."
	errDateRequired       = "Planned Sample Date is required"
	errNoLearnersRandom   = "No learners available to apply random samples."
	errNoUnitsSelected    = "Please select at least one unit before applying samples."
	errNoSampledLearners  = "Select at least one learner with sampled units before applying."
	errNoRandomLearners   = "No learners with units available to apply random samples."
	errApplyUnavailable   = "Apply samples is unavailable right now."
	errPlanFirst          = "Please select a plan before applying filters."
	errUnknownCourseRef   = "Course reference not recognized."
	errUnknownPlan        = "Plan not found for the selected course."

	msgManualSuccess = "Sampled learners added successfully."
	msgRandomSuccess = "Random sampled learners added successfully."
	msgManualFailed  = "Failed to apply sampled learners."
	msgRandomFailed  = "Failed to apply random sampled learners."
)

const coursePageSize = 100

type (
	// Repository is the upstream LMS collaborator contract. Plan lookups
	// return raw, arbitrarily-shaped data; NormalizePlans canonicalizes it.
	Repository interface {
		QueryCourses(page, pageSize int) ([]Course, int, error)
		QuerySamplePlans(courseID string, assessor Assessor) (interface{}, error)
		QueryPlanLearners(planID string, filterApplied bool, search string) ([]LearnerRow, error)
		ApplySamples(payload ApplySamplesPayload) (ApplyResult, error)
	}

	// Service hands out one sampling session per assessor.
	Service struct {
		repo    Repository
		log     core.Logger
		mailSvc core.EmailService

		mu       sync.Mutex
		sessions map[string]*Session
	}

	// Session is the apply-samples orchestrator for one assessor: it owns the
	// selection state for the lifetime of a course/plan context, validates
	// preconditions, runs the sampler, builds the payload and reconciles
	// submission results back into state. Public methods are serialized by the
	// session mutex: a single writer context, last write wins. The one exception
	// is the in-flight sample submission, which runs outside the lock so that a
	// concurrent apply can be rejected while it is pending.
	Session struct {
		repo    Repository
		log     core.Logger
		mailSvc core.EmailService

		assessor Assessor

		mu      sync.Mutex
		state   *State
		rng     *rand.Rand
		courses map[string]Course // known courses by id
	}
)

func NewService(repo Repository, logger core.Logger, mailSvc core.EmailService) *Service {
	return &Service{
		repo:     repo,
		log:      logger,
		mailSvc:  mailSvc,
		sessions: make(map[string]*Session),
	}
}

// Session returns the assessor's session, creating it on first touch.
func (svc *Service) Session(assessor Assessor) *Session {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if s, ok := svc.sessions[assessor.ID]; ok {
		return s
	}
	s := &Session{
		repo:     svc.repo,
		log:      svc.log,
		mailSvc:  svc.mailSvc,
		assessor: assessor,
		state:    NewState(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		courses:  make(map[string]Course),
	}
	svc.sessions[assessor.ID] = s
	return s
}

// State exposes the read selectors; mutations go through session methods.
func (s *Session) State() *State {
	return s.state
}

// Courses returns one page of the upstream course list and remembers every
// course seen, so deep-link references can be checked against known courses.
func (s *Session) Courses(page, pageSize int) ([]Course, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = coursePageSize
	}
	rows, total, err := s.repo.QueryCourses(page, pageSize)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}

	s.mu.Lock()
	for _, c := range rows {
		s.courses[c.ID] = c
	}
	s.mu.Unlock()
	return rows, total, nil
}

// SelectCourse switches the session to a course and loads its sample plans.
func (s *Session) SelectCourse(courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectCourse(courseID)
}

// SelectCourseRef resolves an external course reference (e.g. from a deep
// link) against the known course list. An unknown reference is rejected with a
// notice; no course gets selected.
func (s *Session) SelectCourseRef(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	course, ok := s.courseByRef(ref)
	if !ok {
		if err := s.loadAllCourses(); err != nil {
			return err
		}
		course, ok = s.courseByRef(ref)
	}
	if !ok {
		s.state.SetNotice(errUnknownCourseRef)
		return core.NewValidationError(errors.New(errUnknownCourseRef))
	}
	return s.selectCourse(course.ID)
}

// SelectPlan picks one of the loaded plans for the current course.
func (s *Session) SelectPlan(planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !planListed(s.state.Plans(), planID) {
		return core.NewValidationError(errors.New(errUnknownPlan))
	}
	s.state.SetSelectedPlan(planID)
	s.autoAdvance()
	return nil
}

// ApplyFilters stores the filter criteria, flips the filter-applied flag and
// fetches learner rows for the selected plan.
func (s *Session) ApplyFilters(f Filters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.SelectedPlanID() == "" {
		return core.NewValidationError(errors.New(errPlanFirst))
	}
	s.state.SetFilters(f)
	s.state.SetFilterApplied(true)
	return s.fetchLearners()
}

// ToggleUnit flips a manual unit selection.
func (s *Session) ToggleUnit(learnerKey, unitKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ToggleUnit(learnerKey, unitKey)
}

// ApplyManualSamples submits the units the assessor picked by hand.
func (s *Session) ApplyManualSamples() error {
	return s.applySamples(false)
}

// ApplyRandomSamples runs the risk-weighted sampler over the loaded learner
// rows, replaces the selection map with its output and submits it.
func (s *Session) ApplyRandomSamples() error {
	return s.applySamples(true)
}

func (s *Session) selectCourse(courseID string) error {
	s.state.SetCourse(courseID)
	if courseID == "" {
		return nil
	}

	raw, err := s.repo.QuerySamplePlans(courseID, s.assessor)
	if err != nil {
		s.state.SetPlans(nil)
		s.log.Warn("fetching sample plans failed", err)
		return errors.Wrap(err, "querying sample plans")
	}
	s.state.SetPlans(NormalizePlans(raw))
	s.autoAdvance()
	return nil
}

// autoAdvance runs the external-assessor auto-trigger chain: pick the first
// plan once plans are loaded, then apply filters and request learners once a
// plan is selected. The phase preconditions guarantee each step fires at most
// once per state.
func (s *Session) autoAdvance() {
	if !s.assessor.External {
		return
	}
	if s.state.Phase() == PhasePlansReady && s.state.SelectedPlanID() == "" {
		if plans := s.state.Plans(); len(plans) > 0 {
			s.state.SetSelectedPlan(plans[0].ID)
		}
	}
	if s.state.Phase() == PhasePlanSelected && !s.state.FilterApplied() {
		s.state.SetFilterApplied(true)
		if err := s.fetchLearners(); err != nil {
			s.log.Warn("auto learner fetch failed", err)
		}
	}
}

func (s *Session) fetchLearners() error {
	planID, gen := s.state.BeginLearnerFetch()
	filters := s.state.Filters()

	rows, err := s.repo.QueryPlanLearners(planID, true, filters.SearchText)
	if err != nil {
		s.state.EndLearnerFetch(gen)
		return errors.Wrap(err, "querying plan learners")
	}
	if !s.state.SetLearners(rows, gen) {
		s.log.Debug("discarding stale learner rows", planID)
	}
	return nil
}

// applySamples is the shared validation preamble and submission path for both
// entry points. Validation stops at the first failure, records a single filter
// error and never reaches the submission collaborator.
//
// The session mutex is held while validating, building the payload and marking
// the state as submitting, but released for the collaborator call itself. An
// apply arriving while one is pending therefore sees the submitting flag and is
// rejected rather than queued behind the in-flight submission.
func (s *Session) applySamples(random bool) error {
	s.mu.Lock()
	payload, err := s.beginSubmission(random)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	result, err := s.repo.ApplySamples(*payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.SetSubmitting(false)

	if err != nil {
		fallback := msgManualFailed
		if random {
			fallback = msgRandomFailed
		}
		msg := ErrorMessage(err, fallback)
		st.SetFilterError(msg)
		st.SetNotice(msg)
		s.log.Error("applying samples failed", err)
		return errors.Wrap(err, "applying samples")
	}

	st.SetFilterError("")
	msg := result.Message
	if msg == "" {
		if random {
			msg = msgRandomSuccess
		} else {
			msg = msgManualSuccess
		}
	}
	st.SetNotice(msg)
	s.notifyApplied(payload, msg)

	if err := s.fetchLearners(); err != nil {
		s.log.Warn("refetching learners after apply failed", err)
	}
	return nil
}

// beginSubmission runs the validation preamble and builds the submission
// payload. On success the state is left marked as submitting; the caller must
// clear the flag once the submission resolves.
func (s *Session) beginSubmission(random bool) (*ApplySamplesPayload, error) {
	st := s.state

	if st.SelectedPlanID() == "" {
		return nil, s.fail(errPlanRequired)
	}
	if st.Filters().SampleType == "" {
		return nil, s.fail(errSampleTypeRequired)
	}
	if s.assessor.ID == "" {
		return nil, s.fail(errAssessorUnknown)
	}
	if random {
		if st.Filters().PlannedSampleDate == "" {
			return nil, s.fail(errDateRequired)
		}
		if len(st.Learners()) == 0 {
			return nil, s.fail(errNoLearnersRandom)
		}
	}
	if st.IsApplySamplesDisabled() {
		return nil, core.NewValidationError(errors.New(errApplyUnavailable))
	}

	if random {
		st.SetSelections(SampleSelections(st.Learners(), s.rng))
	} else if !st.HasSelection() {
		return nil, s.fail(errNoUnitsSelected)
	}

	filters := st.Filters()
	payload := BuildApplySamplesPayload(BuildParams{
		PlanID:     st.SelectedPlanID(),
		SampleType: filters.SampleType,
		AssessorID: s.assessor.ID,
		DateFrom:   filters.PlannedSampleDate,
		Methods:    filters.Methods,
		Rows:       st.Learners(),
		Selections: st.Selections(),
	})
	if payload == nil {
		if random {
			return nil, s.fail(errNoRandomLearners)
		}
		return nil, s.fail(errNoSampledLearners)
	}

	st.SetSubmitting(true)
	return payload, nil
}

func (s *Session) fail(msg string) error {
	s.state.SetFilterError(msg)
	return core.NewValidationError(errors.New(msg))
}

func (s *Session) notifyApplied(payload *ApplySamplesPayload, msg string) {
	if s.mailSvc == nil || s.assessor.Email == "" {
		return
	}
	s.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: s.assessor.Email}},
		Subject: "QA samples applied",
		Body: fmt.Sprintf(
			"%s\nPlan %s: %d learner(s) sampled as %q.",
			msg, payload.PlanID, len(payload.Learners), payload.SampleType,
		),
	})
}

func (s *Session) courseByRef(ref string) (Course, bool) {
	for _, c := range s.courses {
		if c.Ref != "" && c.Ref == ref {
			return c, true
		}
	}
	if c, ok := s.courses[ref]; ok {
		return c, true
	}
	return Course{}, false
}

// loadAllCourses pages through the upstream course list into the known set.
func (s *Session) loadAllCourses() error {
	for page := 1; ; page++ {
		rows, total, err := s.repo.QueryCourses(page, coursePageSize)
		if err != nil {
			return errors.Wrap(err, "querying courses")
		}
		for _, c := range rows {
			s.courses[c.ID] = c
		}
		if len(rows) == 0 || page*coursePageSize >= total {
			return nil
		}
	}
}
