package dummydb

import (
	"strings"

	"github.com/google/uuid"

	"github.com/kymoni/elimika/core/qa"
)

type QARepository struct {
	db *qaTables
}

var _ qa.Repository = (*QARepository)(nil) // interface compliance check

// NewQARepository returns an in-memory stand-in for the upstream LMS service.
func NewQARepository(db *DB) *QARepository {
	return &QARepository{db: db.qa}
}

// SeedCourse registers a course with its raw plan payload and learner rows.
// The raw payload deliberately keeps whatever shape the caller hands in, so
// tests and DEV runs exercise the same normalization paths as production.
func (repo *QARepository) SeedCourse(course qa.Course, rawPlans interface{}, learnersByPlan map[string][]qa.LearnerRow) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.courses = append(repo.db.courses, course)
	repo.db.plans[course.ID] = rawPlans
	for planID, rows := range learnersByPlan {
		repo.db.learners[planID] = rows
	}
}

func (repo *QARepository) QueryCourses(page, pageSize int) ([]qa.Course, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	total := len(repo.db.courses)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	out := make([]qa.Course, end-start)
	copy(out, repo.db.courses[start:end])
	return out, total, nil
}

func (repo *QARepository) QuerySamplePlans(courseID string, assessor qa.Assessor) (interface{}, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.plans[courseID], nil
}

func (repo *QARepository) QueryPlanLearners(planID string, filterApplied bool, search string) ([]qa.LearnerRow, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := repo.db.learners[planID]
	if search == "" {
		out := make([]qa.LearnerRow, len(rows))
		copy(out, rows)
		return out, nil
	}
	out := make([]qa.LearnerRow, 0, len(rows))
	for _, row := range rows {
		if containsFold(row.LearnerName, search) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (repo *QARepository) ApplySamples(payload qa.ApplySamplesPayload) (qa.ApplyResult, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.submissions = append(repo.db.submissions, submission{
		ID:      uuid.New().String(),
		Payload: payload,
	})
	return qa.ApplyResult{}, nil
}

// Submissions exposes recorded submissions for test assertions.
func (repo *QARepository) Submissions() []qa.ApplySamplesPayload {
	repo.db.RLock()
	defer repo.db.RUnlock()

	out := make([]qa.ApplySamplesPayload, 0, len(repo.db.submissions))
	for _, s := range repo.db.submissions {
		out = append(out, s.Payload)
	}
	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
