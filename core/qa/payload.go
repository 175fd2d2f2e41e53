package qa

// BuildParams carries everything the payload builder needs; it performs no
// network or state side effects given these inputs.
type BuildParams struct {
	PlanID     string
	SampleType string
	AssessorID string
	DateFrom   string
	Methods    []string
	Rows       []LearnerRow
	Selections SelectionMap
}

// BuildApplySamplesPayload assembles the submission payload from the learner
// rows and the selection map. It returns nil when no learner carries a
// non-empty selection: the single signal that there is nothing to submit,
// which is not an error of the builder itself. Learners without selections are
// omitted outright, never represented as empty entries.
func BuildApplySamplesPayload(p BuildParams) *ApplySamplesPayload {
	learners := make([]ApplySamplesLearner, 0, len(p.Rows))
	for i, row := range p.Rows {
		set := p.Selections[LearnerKey(row.LearnerName, i)]
		if len(set) == 0 {
			continue
		}
		learners = append(learners, ApplySamplesLearner{
			LearnerName: row.LearnerName,
			UnitKeys:    set.Keys(),
		})
	}
	if len(learners) == 0 {
		return nil
	}
	return &ApplySamplesPayload{
		PlanID:     p.PlanID,
		SampleType: p.SampleType,
		AssessorID: p.AssessorID,
		DateFrom:   p.DateFrom,
		Methods:    p.Methods,
		Learners:   learners,
	}
}
