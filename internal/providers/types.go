// Package providers holds the AI backend capability interface and its
// implementations. The pipeline only sees AIProvider; the concrete backend
// is selected once at startup from config.
package providers

import "context"

// AIProvider is the capability interface over the conversational AI backend.
type AIProvider interface {
	// Name returns the provider identifier (e.g. "openai").
	Name() string

	// CreateThread opens a new AI-side conversation and returns its id.
	CreateThread(ctx context.Context) (string, error)

	// Respond sends one user message into the thread and returns the
	// assistant's reply. The call blocks until the backend completes or the
	// context deadline fires; callers set a hard timeout on ctx.
	Respond(ctx context.Context, threadID, body string) (string, error)
}
