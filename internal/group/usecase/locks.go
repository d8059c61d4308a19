package usecase

import (
	"sync"

	"github.com/allisson/strongroom/internal/secrets/domain"
)

// groupLocks holds one read-write lock per group identity for the process
// lifetime. Locks are installed at most once; later callers on the same
// identity reuse the installed lock and never remove it.
var groupLocks sync.Map

// lockFor returns the shared lock of a group identity, installing it
// atomically on first use.
func lockFor(group domain.GroupIdentifier) *sync.RWMutex {
	actual, _ := groupLocks.LoadOrStore(group.String(), &sync.RWMutex{})
	return actual.(*sync.RWMutex)
}
