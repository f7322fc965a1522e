package batch

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/promptdeck/promptdeck/pkg/bulk/ingest"
	"github.com/promptdeck/promptdeck/pkg/bulk/store"
)

// MaxRows caps one batch so a single invocation stays inside the
// execution environment's time budget.
const MaxRows = 100

// DefaultInterRecordDelay spaces enrichment calls out. It must stay
// longer than the enrichment client's retry base delay so the
// steady-state request rate holds even across successful calls.
const DefaultInterRecordDelay = 5 * time.Second

// Batch-fatal errors: when one of these is returned, nothing was
// persisted.
var (
	ErrEmptyBatch     = errors.New("bulk: empty batch")
	ErrBatchTooLarge  = errors.New("bulk: batch too large")
	ErrMissingColumns = errors.New("bulk: missing required columns")
)

// Enricher produces an image for a stored record and returns its public
// URL. All retry policy lives behind this interface; the runner never
// retries an enrichment call itself.
type Enricher interface {
	Enrich(ctx context.Context, text, recordID, batchID string) (string, error)
}

// Options for one invocation.
type Options struct {
	// EnrichImages asks for a generated thumbnail per created record.
	EnrichImages bool
	// ActorID is stamped on every created record as its author.
	ActorID string
}

// Runner drives one bulk upload through normalize → persist → enrich.
// Rows are processed strictly in order, one at a time: the pacing that
// keeps the pipeline under the image provider's rate limit depends on
// there being exactly one request in flight.
//
// A failed row never aborts the batch. Validation and persistence
// failures become failed result entries; enrichment failures are soft
// and leave the record without a thumbnail.
type Runner struct {
	Store    store.Store
	Enricher Enricher           // nil disables enrichment regardless of Options
	Logger   *zap.SugaredLogger // nil means no logging

	// Clock and Rand feed batch-id generation. Nil selects the wall
	// clock and a time-seeded source.
	Clock func() time.Time
	Rand  *rand.Rand

	// Pace throttles successive enrichment calls. Nil selects a
	// limiter built from DefaultInterRecordDelay.
	Pace *rate.Limiter
}

// rowItem is one unit of work for the per-row loop.
type rowItem struct {
	rec   *ingest.RecordInput
	err   error  // validation failure
	title string // best-effort title for failed entries
	blank bool
}

// RunCSV tokenizes a raw upload and processes every data row. The first
// row is the header. Batch-level preconditions (empty upload, more than
// MaxRows data rows, required columns absent) fail the whole call
// before anything is persisted.
func (r *Runner) RunCSV(ctx context.Context, text string, opts Options) (*Job, error) {
	rows := ingest.SplitRows(text)
	if len(rows) < 2 {
		return nil, ErrEmptyBatch
	}
	header, data := rows[0], rows[1:]
	if len(data) > MaxRows {
		return nil, errors.Wrapf(ErrBatchTooLarge, "%d rows exceeds the %d row limit", len(data), MaxRows)
	}

	hm := ingest.NewHeaderMap(header)
	if missing := hm.Missing(ingest.RequiredColumns...); len(missing) > 0 {
		return nil, errors.Wrapf(ErrMissingColumns, "header lacks %s", strings.Join(missing, ", "))
	}

	items := make([]rowItem, 0, len(data))
	for i, row := range data {
		// Human-facing row numbers count the header as row 1.
		rec, err := ingest.Normalize(hm, row, i+2)
		items = append(items, rowItem{
			rec:   rec,
			err:   err,
			title: strings.TrimSpace(hm.Lookup(row, "title")),
			blank: rec == nil && err == nil,
		})
	}
	return r.run(ctx, items, opts)
}

// Run processes pre-normalized records, applying the same batch-level
// preconditions and per-row isolation as RunCSV.
func (r *Runner) Run(ctx context.Context, records []ingest.RecordInput, opts Options) (*Job, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(records) > MaxRows {
		return nil, errors.Wrapf(ErrBatchTooLarge, "%d rows exceeds the %d row limit", len(records), MaxRows)
	}

	items := make([]rowItem, len(records))
	for i := range records {
		items[i] = rowItem{rec: &records[i], title: records[i].Title}
	}
	return r.run(ctx, items, opts)
}

func (r *Runner) run(ctx context.Context, items []rowItem, opts Options) (*Job, error) {
	job := &Job{BatchID: NewBatchID(r.now(), r.rng())}
	log := r.log()
	log.Infow("bulk batch starting",
		"batch", job.BatchID, "rows", len(items), "enrich", opts.EnrichImages)

	for _, it := range items {
		if it.blank {
			// Counted in the total, contributes neither outcome.
			continue
		}
		if it.err != nil {
			job.Results = append(job.Results, ResultEntry{Title: it.title, Error: it.err.Error()})
			continue
		}
		job.Results = append(job.Results, r.processRow(ctx, job.BatchID, *it.rec, opts))
	}

	job.Summary = Summary{Total: len(items)}
	for _, entry := range job.Results {
		if entry.Error == "" {
			job.Summary.Success++
		} else {
			job.Summary.Failed++
		}
	}

	log.Infow("bulk batch finished",
		"batch", job.BatchID,
		"total", job.Summary.Total, "success", job.Summary.Success, "failed", job.Summary.Failed)
	return job, nil
}

// processRow persists one record and optionally enriches it. Failures
// are captured in the returned entry, never propagated.
func (r *Runner) processRow(ctx context.Context, batchID string, rec ingest.RecordInput, opts Options) ResultEntry {
	log := r.log()
	entry := ResultEntry{Title: rec.Title}

	id, err := r.Store.Create(ctx, store.Prompt{
		Title:     rec.Title,
		Content:   rec.Content,
		Tag:       rec.Tag,
		CustomURL: rec.CustomURL,

		Views:  rec.Views,
		Likes:  rec.Likes,
		Copied: rec.Copied,

		LaunchChatGPT:    rec.LaunchChatGPT,
		LaunchClaude:     rec.LaunchClaude,
		LaunchGemini:     rec.LaunchGemini,
		LaunchPerplexity: rec.LaunchPerplexity,
		TotalLaunches:    rec.TotalLaunches(),

		Invisible: rec.Invisible,
		BatchID:   batchID,
		AuthorID:  opts.ActorID,
	})
	if err != nil {
		log.Errorw("bulk create failed", "batch", batchID, "title", rec.Title, "error", err)
		entry.Error = err.Error()
		return entry
	}
	entry.RecordID = id

	if !opts.EnrichImages || r.Enricher == nil {
		return entry
	}

	// One enrichment call at a time, spaced by the pace limiter.
	if err := r.pace().Wait(ctx); err != nil {
		log.Warnw("pacing interrupted", "batch", batchID, "record", id, "error", err)
		return entry
	}

	url, err := r.Enricher.Enrich(ctx, rec.Content, id, batchID)
	if err != nil {
		// Soft failure: the record stays, just without a thumbnail.
		log.Warnw("enrichment failed", "batch", batchID, "record", id, "error", err)
		return entry
	}
	if url == "" {
		return entry
	}

	if err := r.Store.Update(ctx, id, store.Patch{ThumbnailURL: &url}); err != nil {
		log.Errorw("thumbnail patch failed", "batch", batchID, "record", id, "error", err)
		entry.Error = err.Error()
		return entry
	}
	entry.ImageURL = url
	return entry
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func (r *Runner) rng() *rand.Rand {
	if r.Rand != nil {
		return r.Rand
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (r *Runner) pace() *rate.Limiter {
	if r.Pace == nil {
		r.Pace = rate.NewLimiter(rate.Every(DefaultInterRecordDelay), 1)
	}
	return r.Pace
}

func (r *Runner) log() *zap.SugaredLogger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop().Sugar()
}
