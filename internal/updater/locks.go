package updater

import "sync"

// ProjectLocks hands out one mutex per project id. The commit path and the
// synthesis write step share the same registry, so at most one writer per
// project touches the stores at a time.
type ProjectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProjectLocks() *ProjectLocks {
	return &ProjectLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *ProjectLocks) Get(projectID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[projectID] = lock
	}
	return lock
}
