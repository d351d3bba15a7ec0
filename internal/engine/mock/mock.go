package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aviklund/questline/internal/engine"
)

// Engine is a test double that returns canned scenes.
type Engine struct {
	mu    sync.Mutex
	calls int

	// Handler, when set, overrides the canned behavior.
	Handler func(ctx context.Context, history []engine.Turn, choice string) (*engine.Scene, error)
}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string { return "mock" }

// Calls reports how many scenes have been requested.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Engine) Open(ctx context.Context) (*engine.Scene, error) {
	return e.next(ctx, nil, "")
}

func (e *Engine) Advance(ctx context.Context, history []engine.Turn, choice string) (*engine.Scene, error) {
	return e.next(ctx, history, choice)
}

func (e *Engine) next(ctx context.Context, history []engine.Turn, choice string) (*engine.Scene, error) {
	e.mu.Lock()
	e.calls++
	n := e.calls
	e.mu.Unlock()

	if e.Handler != nil {
		return e.Handler(ctx, history, choice)
	}

	return &engine.Scene{
		ID:        fmt.Sprintf("mock-scene-%d", n),
		Narration: fmt.Sprintf("Scene %d unfolds before you.", n),
		Choices:   []string{"Go left", "Go right"},
	}, nil
}
