// Package llm talks to the language model backing evaluations.
package llm

import (
	"context"

	"github.com/mpataki/awinspect/internal/models"
)

// Request is a single prompt sent to a model.
type Request struct {
	ModelID   string
	Prompt    string
	SessionID string

	// OnStart, when set, receives the PID of the model process once it is
	// running.
	OnStart func(pid int)
}

// Event is one item of a streamed response. Exactly one of Delta and Err is
// set.
type Event struct {
	Delta string
	Err   error
}

// Provider lists models and streams responses from them. The channel
// returned by Stream is closed after the final event.
type Provider interface {
	ListModels(ctx context.Context) ([]models.ChatModel, error)
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}
