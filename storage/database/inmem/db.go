package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Ruben-Andrade-Huerta/Unitrack/core/school"
	"github.com/Ruben-Andrade-Huerta/Unitrack/core/user"
)

// DB is a map-backed stand-in for the real database, used by tests. It
// enforces the same invariants: unique emails and matriculas, ownership
// chains, per-group session label counters and cascading deletes.
type (
	DB struct {
		user   *userTable
		school *schoolTable
	}

	userTable struct {
		t     map[uuid.UUID]*user.User
		mutex sync.RWMutex
	}

	schoolTable struct {
		subjects    map[uuid.UUID]*school.Subject
		groups      map[uuid.UUID]*school.Group
		labelSeq    map[uuid.UUID]int // per group
		students    map[uuid.UUID]*school.Student
		enrollments map[uuid.UUID]*school.Enrollment
		sessions    map[uuid.UUID]*school.Session
		mutex       sync.RWMutex
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{t: make(map[uuid.UUID]*user.User)},
		school: &schoolTable{
			subjects:    make(map[uuid.UUID]*school.Subject),
			groups:      make(map[uuid.UUID]*school.Group),
			labelSeq:    make(map[uuid.UUID]int),
			students:    make(map[uuid.UUID]*school.Student),
			enrollments: make(map[uuid.UUID]*school.Enrollment),
			sessions:    make(map[uuid.UUID]*school.Session),
		},
	}
	return db, nil
}
