package qa

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type (
	// Plan is a canonical QA sample plan entry, normalized from whatever
	// shape the upstream service returned.
	Plan struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}

	// Unit is a course unit as reported by the upstream learner rows. Extra
	// upstream fields are ignored on decode.
	Unit struct {
		Code string `json:"unit_code"`
		Name string `json:"unit_name"`
	}

	// LearnerRow is one learner within a sample plan, with the risk weighting
	// driving random selection.
	LearnerRow struct {
		LearnerName    string         `json:"learner_name"`
		RiskPercentage RiskPercentage `json:"risk_percentage"`
		Units          []Unit         `json:"units"`
	}

	// UnitSet is a set of unit keys selected for one learner.
	UnitSet map[string]bool

	// SelectionMap maps learner keys to the units selected for sampling.
	SelectionMap map[string]UnitSet

	// Course is an upstream course; Ref carries the external deep-link
	// reference used by external quality assurers.
	Course struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Ref  string `json:"ref,omitempty"`
	}

	// Assessor identifies the quality assurer driving a session. External
	// assessors (EQA role) use external plan-lookup parameters and get the
	// deep-link auto-trigger behavior.
	Assessor struct {
		ID       string
		Email    string
		External bool
	}

	ApplySamplesLearner struct {
		LearnerName string   `json:"learner_name"`
		UnitKeys    []string `json:"unit_keys"`
	}

	// ApplySamplesPayload is the submission request body. It is built fresh
	// per submission and never mutated afterwards.
	ApplySamplesPayload struct {
		PlanID     string                `json:"plan_id"`
		SampleType string                `json:"sample_type"`
		AssessorID string                `json:"assessor_id"`
		DateFrom   string                `json:"date_from"`
		Methods    []string              `json:"methods"`
		Learners   []ApplySamplesLearner `json:"learners"`
	}

	ApplyResult struct {
		Message string `json:"message"`
	}
)

// Key derives the identifier addressing this unit inside selection maps and
// payloads: the unit code, else the unit name. Empty means the unit cannot be
// addressed and is skipped.
func (u Unit) Key() string {
	if k := strings.TrimSpace(u.Code); k != "" {
		return k
	}
	return strings.TrimSpace(u.Name)
}

// LearnerKey disambiguates learners sharing a display name within one plan.
func LearnerKey(name string, idx int) string {
	return fmt.Sprintf("%s-%d", name, idx)
}

// RiskPercentage tolerates the three shapes the upstream emits for the field:
// a JSON number, a quoted number and null.
type RiskPercentage struct {
	raw string
}

func NewRiskPercentage(raw string) RiskPercentage {
	return RiskPercentage{raw: raw}
}

func (r *RiskPercentage) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "null" {
		r.raw = ""
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	r.raw = s
	return nil
}

func (r RiskPercentage) MarshalJSON() ([]byte, error) {
	if r.raw == "" {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(r.raw)), nil
}

// Float parses the risk value; missing or unparseable values count as zero.
func (r RiskPercentage) Float() float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.raw), 64)
	if err != nil {
		return 0
	}
	return f
}

func (r RiskPercentage) String() string {
	return r.raw
}

func (s UnitSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasAny reports whether any learner carries a non-empty unit selection.
func (m SelectionMap) HasAny() bool {
	for _, set := range m {
		if len(set) > 0 {
			return true
		}
	}
	return false
}

func (m SelectionMap) clone() SelectionMap {
	out := make(SelectionMap, len(m))
	for lk, set := range m {
		cp := make(UnitSet, len(set))
		for uk := range set {
			cp[uk] = true
		}
		out[lk] = cp
	}
	return out
}
