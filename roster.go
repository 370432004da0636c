package timer

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	errRosterClosed = errors.New("server shutting down")
	errRosterFull   = errors.New("connection limit reached")
)

// roster tracks the running connection handlers so Shutdown can join them.
// Once closed it refuses new handlers, which keeps spawn from racing with wait.
type roster struct {
	mu     sync.Mutex
	closed bool
	group  errgroup.Group
}

// newRoster returns a roster running at most limit handlers at once.
// A limit <= 0 means no limit.
func newRoster(limit int) *roster {
	r := &roster{}
	if limit > 0 {
		r.group.SetLimit(limit)
	}
	return r
}

// spawn starts fn in its own goroutine unless the roster is closed or full.
func (r *roster) spawn(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errRosterClosed
	}
	if !r.group.TryGo(fn) {
		return errRosterFull
	}
	return nil
}

// close stops the roster from accepting new handlers.
func (r *roster) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// wait blocks until every spawned handler has returned.
func (r *roster) wait() error {
	return r.group.Wait()
}
