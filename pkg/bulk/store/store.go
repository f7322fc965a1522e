package store

import (
	"context"
	"time"
)

// Store is the minimal persistence contract the bulk pipeline needs:
// create one record, patch one record. Everything else the product does
// with prompts lives behind other services.
type Store interface {
	Close() error

	// Create persists a new prompt and returns its id.
	Create(ctx context.Context, p Prompt) (string, error)
	// Update applies a partial patch to an existing prompt.
	Update(ctx context.Context, id string, patch Patch) error
}

// Prompt is the persisted form of one bulk-created record.
type Prompt struct {
	ID        string
	Title     string
	Content   string
	Tag       string
	CustomURL string

	Views  int
	Likes  int
	Copied int

	LaunchChatGPT    int
	LaunchClaude     int
	LaunchGemini     int
	LaunchPerplexity int
	TotalLaunches    int

	Invisible    bool
	ThumbnailURL string

	BatchID   string
	AuthorID  string
	CreatedAt time.Time
}

// Patch carries partial updates; nil fields are left untouched.
type Patch struct {
	ThumbnailURL *string
	Invisible    *bool
}
