package timer

import (
	"sync"
	"sync/atomic"
)

// runFlag is the cooperative cancellation token handed to every worker.
// It starts set and is cleared exactly once by closing its channel.
type runFlag struct {
	once sync.Once
	done chan struct{}
}

func newRunFlag() *runFlag {
	return &runFlag{done: make(chan struct{})}
}

// IsSet reports whether workers may still start new blocking operations.
func (f *runFlag) IsSet() bool {
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

// Clear clears the flag. Only the first call has an effect.
func (f *runFlag) Clear() {
	f.once.Do(func() {
		close(f.done)
	})
}

// lifecycle captures the whole state of a server or client:
// {initialized, running}. Legal pairs are {false,true} after construction,
// {true,true} while active and {false,false} once shut down.
type lifecycle struct {
	initialized atomic.Bool
	running     *runFlag
}
