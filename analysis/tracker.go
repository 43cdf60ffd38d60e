package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"clipflow/models"
)

// InvocationState is the lifecycle of one coordinator invocation.
type InvocationState int

const (
	InvocationRunning InvocationState = iota
	InvocationCompleted
	InvocationFailed
	InvocationCancelled
)

func (s InvocationState) String() string {
	switch s {
	case InvocationRunning:
		return "running"
	case InvocationCompleted:
		return "completed"
	case InvocationFailed:
		return "failed"
	case InvocationCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrUnknownInvocation is returned by Cancel for a (kind, job id) this
// process never ran.
var ErrUnknownInvocation = errors.New("unknown analysis invocation")

// Tracker allows at most one in-flight invocation per (kind, job id) in this
// process and lets operators cancel running ones. Settled states are kept
// until Prune drops them.
type Tracker struct {
	mu      sync.RWMutex
	active  map[string]context.CancelFunc
	states  map[string]InvocationState
	settled map[string]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		active:  make(map[string]context.CancelFunc),
		states:  make(map[string]InvocationState),
		settled: make(map[string]time.Time),
	}
}

func trackKey(kind models.AnalyzerKind, jobID string) string {
	return string(kind) + "/" + jobID
}

// Begin registers an invocation. ok is false when one is already running;
// otherwise the returned context is cancelled by Cancel and finish must be
// called with the invocation's final error.
func (t *Tracker) Begin(parent context.Context, kind models.AnalyzerKind, jobID string) (ctx context.Context, finish func(error), ok bool) {
	key := trackKey(kind, jobID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, running := t.active[key]; running {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	t.active[key] = cancel
	t.states[key] = InvocationRunning
	delete(t.settled, key)

	finish = func(err error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.active, key)
		t.settled[key] = time.Now()
		if t.states[key] == InvocationRunning { // Cancel already recorded otherwise
			switch {
			case err != nil && ctx.Err() != nil:
				t.states[key] = InvocationCancelled
			case err != nil:
				t.states[key] = InvocationFailed
			default:
				t.states[key] = InvocationCompleted
			}
		}
		cancel()
	}
	return ctx, finish, true
}

// Cancel stops a running invocation.
func (t *Tracker) Cancel(kind models.AnalyzerKind, jobID string) error {
	key := trackKey(kind, jobID)

	t.mu.Lock()
	defer t.mu.Unlock()
	state, exists := t.states[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownInvocation, key)
	}
	if state != InvocationRunning {
		return fmt.Errorf("analysis %s is already %s", key, state)
	}
	cancel, ok := t.active[key]
	if !ok {
		return fmt.Errorf("analysis %s is not active", key)
	}
	cancel()
	t.states[key] = InvocationCancelled
	return nil
}

// State returns the last known state of an invocation.
func (t *Tracker) State(kind models.AnalyzerKind, jobID string) (InvocationState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, exists := t.states[trackKey(kind, jobID)]
	return state, exists
}

// Running lists the keys of in-flight invocations.
func (t *Tracker) Running() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.active))
	for k := range t.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Prune forgets invocations that settled before cutoff and returns how many
// were dropped. Running invocations are never pruned.
func (t *Tracker) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, at := range t.settled {
		if _, running := t.active[key]; running || !at.Before(cutoff) {
			continue
		}
		delete(t.settled, key)
		delete(t.states, key)
		removed++
	}
	return removed
}
