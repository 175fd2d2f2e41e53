package qa

import "sync"

// Phase tracks where a course context sits in the plan/filter/learner cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlansLoading
	PhasePlansReady
	PhasePlanSelected
	PhaseFilterApplied
	PhaseLearnersLoaded
)

var phaseNames = map[Phase]string{
	PhaseIdle:           "idle",
	PhasePlansLoading:   "plans_loading",
	PhasePlansReady:     "plans_ready",
	PhasePlanSelected:   "plan_selected",
	PhaseFilterApplied:  "filter_applied",
	PhaseLearnersLoaded: "learners_loaded",
}

func (p Phase) String() string {
	return phaseNames[p]
}

// Filters is the user-set filter criteria for the current plan.
type Filters struct {
	SampleType        string   `json:"sample_type"`
	SearchText        string   `json:"search_text"`
	PlannedSampleDate string   `json:"planned_sample_date"`
	Methods           []string `json:"methods"`
}

// Snapshot is the read model exposed to the UI.
type Snapshot struct {
	CourseID               string       `json:"course_id"`
	Plans                  []Plan       `json:"plans"`
	SelectedPlanID         string       `json:"selected_plan_id"`
	Filters                Filters      `json:"filters"`
	FilterApplied          bool         `json:"filter_applied"`
	FilterError            string       `json:"filter_error"`
	Phase                  string       `json:"phase"`
	Learners               []LearnerRow `json:"learners"`
	Selections             SelectionMap `json:"selections"`
	IsApplySamplesDisabled bool         `json:"is_apply_samples_disabled"`
}

// State owns the per-course-context filter state and selection map. All
// mutations are applied atomically under the lock, so readers never observe a
// partially-updated map. It is built by its owning session, never shared as an
// ambient singleton.
type State struct {
	mu sync.RWMutex

	courseID       string
	plans          []Plan
	selectedPlanID string

	filters       Filters
	filterApplied bool
	filterError   string
	notice        string

	learners   []LearnerRow
	selections SelectionMap

	plansLoading    bool
	learnersLoading bool
	submitting      bool

	phase Phase

	// learnerGen invalidates in-flight learner fetches when the plan or
	// course changes underneath them.
	learnerGen int
}

func NewState() *State {
	return &State{selections: make(SelectionMap)}
}

// SetCourse switches the course context. Plans are scoped to a course, so the
// plan list, the selected plan, the filters and the selection map are all
// cleared; a non-empty course immediately re-enters the plans-loading phase.
func (s *State) SetCourse(courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.courseID = courseID
	s.plans = nil
	s.selectedPlanID = ""
	s.filters = Filters{}
	s.filterApplied = false
	s.filterError = ""
	s.learners = nil
	s.selections = make(SelectionMap)
	s.learnerGen++

	if courseID == "" {
		s.phase = PhaseIdle
		s.plansLoading = false
		return
	}
	s.phase = PhasePlansLoading
	s.plansLoading = true
}

func (s *State) CourseID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.courseID
}

// SetPlans replaces the plan list; the selected plan is kept only if it still
// appears in the new list.
func (s *State) SetPlans(plans []Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans = plans
	s.plansLoading = false

	if s.selectedPlanID != "" && !planListed(plans, s.selectedPlanID) {
		s.selectedPlanID = ""
	}
	if s.selectedPlanID == "" {
		s.phase = PhasePlansReady
	}
}

func (s *State) Plans() []Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Plan, len(s.plans))
	copy(out, s.plans)
	return out
}

// SetSelectedPlan picks a plan; switching plans invalidates applied filters,
// loaded learners and any in-flight learner fetch.
func (s *State) SetSelectedPlan(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if planID == s.selectedPlanID {
		return
	}
	s.selectedPlanID = planID
	s.filterApplied = false
	s.filterError = ""
	s.learners = nil
	s.selections = make(SelectionMap)
	s.learnerGen++
	if planID == "" {
		s.phase = PhasePlansReady
		return
	}
	s.phase = PhasePlanSelected
}

func (s *State) SelectedPlanID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedPlanID
}

func (s *State) SelectedPlan() (Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.plans {
		if p.ID == s.selectedPlanID {
			return p, true
		}
	}
	return Plan{}, false
}

func (s *State) SetFilters(f Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = f
}

func (s *State) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := s.filters
	f.Methods = append([]string(nil), s.filters.Methods...)
	return f
}

func (s *State) SetFilterApplied(applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterApplied = applied
	if applied && s.phase == PhasePlanSelected {
		s.phase = PhaseFilterApplied
	}
}

func (s *State) FilterApplied() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterApplied
}

// SetFilterError records a blocking validation/submission message; a non-empty
// message means the caller must not proceed with submission.
func (s *State) SetFilterError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterError = msg
}

func (s *State) FilterError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterError
}

// SetNotice records a transient notification; TakeNotice clears it on read.
func (s *State) SetNotice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = msg
}

func (s *State) TakeNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.notice
	s.notice = ""
	return msg
}

// BeginLearnerFetch marks a learner fetch in flight and returns the plan id to
// fetch for plus the generation token the result must present.
func (s *State) BeginLearnerFetch() (planID string, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learnersLoading = true
	return s.selectedPlanID, s.learnerGen
}

// SetLearners installs fetched learner rows. A stale generation (the plan or
// course changed while the fetch was in flight) is discarded: last write wins.
// Every accepted fetch resets the selection map so selections from a previous
// plan cannot leak into the new rows.
func (s *State) SetLearners(rows []LearnerRow, gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.learnerGen {
		return false
	}
	s.learnersLoading = false
	s.learners = rows
	s.selections = make(SelectionMap)
	if len(rows) > 0 {
		s.phase = PhaseLearnersLoaded
	}
	return true
}

// EndLearnerFetch clears the in-flight flag after a failed fetch.
func (s *State) EndLearnerFetch(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.learnerGen {
		s.learnersLoading = false
	}
}

func (s *State) Learners() []LearnerRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LearnerRow, len(s.learners))
	copy(out, s.learners)
	return out
}

// ResetSelectedUnits clears the entire selection map.
func (s *State) ResetSelectedUnits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections = make(SelectionMap)
}

// ToggleUnit flips one unit in a learner's selection.
func (s *State) ToggleUnit(learnerKey, unitKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.selections[learnerKey]
	if set == nil {
		set = make(UnitSet)
		s.selections[learnerKey] = set
	}
	if set[unitKey] {
		delete(set, unitKey)
		return
	}
	set[unitKey] = true
}

// SetSelections replaces the whole selection map (sampler output overrides any
// manual picks).
func (s *State) SetSelections(m SelectionMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections = m.clone()
}

func (s *State) Selections() SelectionMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selections.clone()
}

func (s *State) HasSelection() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selections.HasAny()
}

func (s *State) SetSubmitting(submitting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = submitting
}

func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// IsApplySamplesDisabled is the combined submit guard: filters not applied, no
// plan, no sample type, no learners, a fetch in flight or a submission already
// running all block both apply entry points.
func (s *State) IsApplySamplesDisabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isApplyDisabled()
}

func (s *State) isApplyDisabled() bool {
	return !s.filterApplied ||
		s.selectedPlanID == "" ||
		s.filters.SampleType == "" ||
		len(s.learners) == 0 ||
		s.plansLoading ||
		s.learnersLoading ||
		s.submitting
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]Plan, len(s.plans))
	copy(plans, s.plans)
	learners := make([]LearnerRow, len(s.learners))
	copy(learners, s.learners)

	return Snapshot{
		CourseID:               s.courseID,
		Plans:                  plans,
		SelectedPlanID:         s.selectedPlanID,
		Filters:                s.filters,
		FilterApplied:          s.filterApplied,
		FilterError:            s.filterError,
		Phase:                  s.phase.String(),
		Learners:               learners,
		Selections:             s.selections.clone(),
		IsApplySamplesDisabled: s.isApplyDisabled(),
	}
}

func planListed(plans []Plan, id string) bool {
	for _, p := range plans {
		if p.ID == id {
			return true
		}
	}
	return false
}
