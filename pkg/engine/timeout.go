package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/shrimp/pkg/graph"
)

// EvalTimeout bounds a scene script run when Engine.Timeout is zero.
const EvalTimeout = 5 * time.Second

var (
	// ErrSuperseded is returned to a caller whose script run finished after
	// a newer run had started.
	ErrSuperseded = errors.New("evaluation superseded by newer request")
	// ErrTimeout is returned when a script run exceeds its time limit.
	ErrTimeout = errors.New("evaluation timed out")
)

// evalResult carries the outcome of one script run back from its goroutine.
type evalResult struct {
	scene  *graph.Scene
	errors []EvalError
	err    error
}

// runCounter numbers script runs. Only the newest run may hand its scene
// to the caller.
type runCounter struct {
	mu sync.Mutex
	n  uint64
}

func (c *runCounter) next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (c *runCounter) isLatest(run uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return run == c.n
}

// awaitScene waits up to limit for run's result. A run that overruns keeps
// going in its sandbox; whatever it sends later lands in the buffered
// channel and is dropped.
func awaitScene(ch <-chan evalResult, run uint64, limit time.Duration, runs *runCounter) (*graph.Scene, []EvalError, error) {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, limit)
	case res := <-ch:
		if !runs.isLatest(run) {
			return nil, nil, ErrSuperseded
		}
		return res.scene, res.errors, res.err
	}
}
