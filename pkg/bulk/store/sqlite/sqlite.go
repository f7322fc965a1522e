package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/promptdeck/promptdeck/pkg/bulk/store"
)

// sqliteStore implements store.Store using SQLite.
type sqliteStore struct {
	db      *sql.DB
	entropy *ulid.MonotonicEntropy
}

// Open opens a SQLite database with WAL mode enabled and initializes
// the schema if needed.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}

	// WAL mode for better concurrency with the serving path.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite: enable WAL")
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Close closes the database connection.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist.
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS prompts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	tag TEXT NOT NULL,
	custom_url TEXT,
	views INTEGER NOT NULL DEFAULT 0,
	likes INTEGER NOT NULL DEFAULT 0,
	copied INTEGER NOT NULL DEFAULT 0,
	launch_chatgpt INTEGER NOT NULL DEFAULT 0,
	launch_claude INTEGER NOT NULL DEFAULT 0,
	launch_gemini INTEGER NOT NULL DEFAULT 0,
	launch_perplexity INTEGER NOT NULL DEFAULT 0,
	total_launches INTEGER NOT NULL DEFAULT 0,
	invisible INTEGER NOT NULL DEFAULT 0,
	thumbnail_url TEXT,
	batch_id TEXT,
	author_id TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prompts_batch ON prompts(batch_id);
CREATE INDEX IF NOT EXISTS idx_prompts_tag ON prompts(tag);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "sqlite: init schema")
	}
	return nil
}

// Create implements store.Store.
func (s *sqliteStore) Create(ctx context.Context, p store.Prompt) (string, error) {
	id := ulid.MustNew(ulid.Now(), s.entropy).String()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO prompts (
	id, title, content, tag, custom_url,
	views, likes, copied,
	launch_chatgpt, launch_claude, launch_gemini, launch_perplexity, total_launches,
	invisible, thumbnail_url, batch_id, author_id, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Title, p.Content, p.Tag, p.CustomURL,
		p.Views, p.Likes, p.Copied,
		p.LaunchChatGPT, p.LaunchClaude, p.LaunchGemini, p.LaunchPerplexity, p.TotalLaunches,
		boolToInt(p.Invisible), p.ThumbnailURL, p.BatchID, p.AuthorID,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", errors.Wrap(err, "sqlite: insert prompt")
	}
	return id, nil
}

// Update implements store.Store.
func (s *sqliteStore) Update(ctx context.Context, id string, patch store.Patch) error {
	var sets []string
	var args []any
	if patch.ThumbnailURL != nil {
		sets = append(sets, "thumbnail_url = ?")
		args = append(args, *patch.ThumbnailURL)
	}
	if patch.Invisible != nil {
		sets = append(sets, "invisible = ?")
		args = append(args, boolToInt(*patch.Invisible))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE prompts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return errors.Wrap(err, "sqlite: update prompt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite: update prompt")
	}
	if n == 0 {
		return errors.Newf("sqlite: no prompt %s", id)
	}
	return nil
}

// Get returns a stored prompt by id. Not part of store.Store; the
// serving path reads prompts through its own query layer.
func (s *sqliteStore) Get(ctx context.Context, id string) (store.Prompt, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, title, content, tag, custom_url,
	views, likes, copied,
	launch_chatgpt, launch_claude, launch_gemini, launch_perplexity, total_launches,
	invisible, thumbnail_url, batch_id, author_id, created_at
FROM prompts WHERE id = ?`, id)

	var p store.Prompt
	var invisible int
	var createdAt string
	err := row.Scan(
		&p.ID, &p.Title, &p.Content, &p.Tag, &p.CustomURL,
		&p.Views, &p.Likes, &p.Copied,
		&p.LaunchChatGPT, &p.LaunchClaude, &p.LaunchGemini, &p.LaunchPerplexity, &p.TotalLaunches,
		&invisible, &p.ThumbnailURL, &p.BatchID, &p.AuthorID, &createdAt,
	)
	if err != nil {
		return store.Prompt{}, errors.Wrap(err, "sqlite: get prompt")
	}
	p.Invisible = invisible != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = t
	}
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
