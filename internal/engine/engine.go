package engine

import "context"

// Scene is one beat of the story: a piece of narration and the choices
// the player can take from it.
type Scene struct {
	ID        string   `json:"id"`
	Narration string   `json:"narration"`
	Choices   []string `json:"choices"`
}

// Turn is one step of a playthrough: the narration the player saw and
// the choice they took from it. The final turn of a transcript may have
// an empty Choice — that is the scene currently awaiting a pick.
type Turn struct {
	Narration string
	Choice    string
}

// Engine produces narrative scenes. Implementations call an external
// generative service; callers treat the content as opaque.
type Engine interface {
	// Open generates the opening scene of a fresh adventure.
	Open(ctx context.Context) (*Scene, error)

	// Advance continues the story from the transcript so far, given the
	// choice the player just took.
	Advance(ctx context.Context, history []Turn, choice string) (*Scene, error)

	// Name returns a human-readable identifier for the backend.
	Name() string
}
