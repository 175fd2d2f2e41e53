package dummydb

import (
	"sync"

	"github.com/kymoni/elimika/core/qa"
	"github.com/kymoni/elimika/core/user"
)

type (
	// DB is the in-memory backend used in DEV and tests: it stands in for both
	// the accounts database and the upstream LMS service.
	DB struct {
		user *userTable
		qa   *qaTables
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	qaTables struct {
		sync.RWMutex
		courses     []qa.Course
		plans       map[string]interface{} // courseID -> raw plan payload
		learners    map[string][]qa.LearnerRow
		submissions []submission
	}

	submission struct {
		ID      string
		Payload qa.ApplySamplesPayload
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		qa: &qaTables{
			plans:    make(map[string]interface{}),
			learners: make(map[string][]qa.LearnerRow),
		},
	}
	return db, nil
}
