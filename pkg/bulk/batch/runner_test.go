package batch

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/promptdeck/promptdeck/pkg/bulk/ingest"
	"github.com/promptdeck/promptdeck/pkg/bulk/store"
)

// stubStore records calls and can fail specific rows by title.
type stubStore struct {
	created    []store.Prompt
	patches    map[string]store.Patch
	failTitles map[string]bool
	nextID     int
}

func newStubStore() *stubStore {
	return &stubStore{patches: make(map[string]store.Patch), failTitles: make(map[string]bool)}
}

func (s *stubStore) Close() error { return nil }

func (s *stubStore) Create(ctx context.Context, p store.Prompt) (string, error) {
	if s.failTitles[p.Title] {
		return "", errors.Newf("store down for %s", p.Title)
	}
	s.nextID++
	p.ID = fmt.Sprintf("rec-%d", s.nextID)
	s.created = append(s.created, p)
	return p.ID, nil
}

func (s *stubStore) Update(ctx context.Context, id string, patch store.Patch) error {
	s.patches[id] = patch
	return nil
}

// stubEnricher returns a canned URL or error per call.
type stubEnricher struct {
	url   string
	err   error
	calls []string // recordIDs in call order
}

func (e *stubEnricher) Enrich(ctx context.Context, text, recordID, batchID string) (string, error) {
	e.calls = append(e.calls, recordID)
	return e.url, e.err
}

func testRunner(st store.Store) *Runner {
	return &Runner{
		Store: st,
		// Effectively unpaced so tests run instantly.
		Pace: rate.NewLimiter(rate.Inf, 1),
	}
}

const csvHeader = "title,content,tag\n"

func TestRunCSVPartialFailure(t *testing.T) {
	st := newStubStore()
	r := testRunner(st)

	csv := csvHeader +
		"First,do a thing,coding\n" +
		"Second,,coding\n" + // missing content
		"Third,do another,writing\n"

	job, err := r.RunCSV(context.Background(), csv, Options{ActorID: "u1"})
	if err != nil {
		t.Fatalf("RunCSV: %v", err)
	}

	want := Summary{Total: 3, Success: 2, Failed: 1}
	if job.Summary != want {
		t.Fatalf("summary = %+v, want %+v", job.Summary, want)
	}
	if len(st.created) != 2 {
		t.Errorf("expected 2 persisted records, got %d", len(st.created))
	}

	failed := job.Results[1]
	if failed.Error == "" {
		t.Fatal("second row should have failed")
	}
	// The upload's second data row sits on line 3, below the header.
	if !strings.Contains(failed.Error, "row 3") {
		t.Errorf("failed entry should carry the human-facing row number, got %q", failed.Error)
	}
	if failed.RecordID != "" {
		t.Errorf("failed entry should have no record id, got %q", failed.RecordID)
	}
}

func TestRunCSVEmpty(t *testing.T) {
	r := testRunner(newStubStore())

	if _, err := r.RunCSV(context.Background(), "", Options{}); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("empty input: err = %v, want ErrEmptyBatch", err)
	}
	// A header with no data rows is still an empty batch.
	if _, err := r.RunCSV(context.Background(), csvHeader, Options{}); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("header only: err = %v, want ErrEmptyBatch", err)
	}
}

func TestRunCSVTooLarge(t *testing.T) {
	st := newStubStore()
	r := testRunner(st)

	var sb strings.Builder
	sb.WriteString(csvHeader)
	for i := 0; i < MaxRows+1; i++ {
		fmt.Fprintf(&sb, "title %d,content %d,tag\n", i, i)
	}

	_, err := r.RunCSV(context.Background(), sb.String(), Options{})
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("err = %v, want ErrBatchTooLarge", err)
	}
	if len(st.created) != 0 {
		t.Errorf("oversized batch must be rejected before any persistence, got %d creates", len(st.created))
	}
}

func TestRunCSVMissingColumns(t *testing.T) {
	st := newStubStore()
	r := testRunner(st)

	_, err := r.RunCSV(context.Background(), "title,views\nX,3\n", Options{})
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("err = %v, want ErrMissingColumns", err)
	}
	for _, col := range []string{"content", "tag"} {
		if !strings.Contains(err.Error(), col) {
			t.Errorf("error should name missing column %q: %v", col, err)
		}
	}
	if len(st.created) != 0 {
		t.Error("missing columns must reject the batch before any persistence")
	}
}

func TestRunCSVBlankRowIsNeitherOutcome(t *testing.T) {
	st := newStubStore()
	r := testRunner(st)

	// The quoted empty cells survive tokenization as an all-empty row.
	csv := csvHeader +
		"First,body,coding\n" +
		`"",""` + ",\n" +
		"Second,body,coding\n"

	job, err := r.RunCSV(context.Background(), csv, Options{})
	if err != nil {
		t.Fatalf("RunCSV: %v", err)
	}
	if job.Summary.Success != 2 || job.Summary.Failed != 0 {
		t.Errorf("summary = %+v, want 2 successes and 0 failures", job.Summary)
	}
	if len(job.Results) != 2 {
		t.Errorf("blank row should produce no result entry, got %d entries", len(job.Results))
	}
}

func TestRunCSVRowIsolation(t *testing.T) {
	st := newStubStore()
	st.failTitles["Bad"] = true
	r := testRunner(st)

	csv := csvHeader +
		"Good,body,coding\n" +
		"Bad,body,coding\n" +
		"AlsoGood,body,coding\n"

	job, err := r.RunCSV(context.Background(), csv, Options{})
	if err != nil {
		t.Fatalf("RunCSV: %v", err)
	}
	if job.Summary.Failed != 1 || job.Summary.Success != 2 {
		t.Fatalf("summary = %+v, want one isolated failure", job.Summary)
	}
	if job.Results[1].Error == "" || job.Results[1].RecordID != "" {
		t.Errorf("failed row entry = %+v", job.Results[1])
	}
	if job.Results[2].RecordID == "" {
		t.Error("row after the failure should still be processed")
	}
}

func TestRunCSVDerivedFields(t *testing.T) {
	st := newStubStore()
	r := testRunner(st)

	csv := "title,content,tag,launchChatgpt,launch_claude,launchGemini,launchPerplexity\n" +
		"X,body,Coding,1,2,3,4\n"

	job, err := r.RunCSV(context.Background(), csv, Options{ActorID: "author-9"})
	if err != nil {
		t.Fatalf("RunCSV: %v", err)
	}

	p := st.created[0]
	if p.TotalLaunches != 10 {
		t.Errorf("TotalLaunches = %d, want 10", p.TotalLaunches)
	}
	if p.BatchID != job.BatchID {
		t.Errorf("record batch id = %q, want %q", p.BatchID, job.BatchID)
	}
	if p.AuthorID != "author-9" {
		t.Errorf("record author = %q, want author-9", p.AuthorID)
	}
	if p.Tag != "coding" {
		t.Errorf("tag = %q, want lower-cased", p.Tag)
	}
}

func TestRunCSVEnrichmentSuccess(t *testing.T) {
	st := newStubStore()
	r := testRunner(st)
	enricher := &stubEnricher{url: "https://cdn.test/thumb.png"}
	r.Enricher = enricher

	csv := csvHeader + "X,body,coding\n"

	job, err := r.RunCSV(context.Background(), csv, Options{EnrichImages: true})
	if err != nil {
		t.Fatalf("RunCSV: %v", err)
	}

	entry := job.Results[0]
	if entry.ImageURL != "https://cdn.test/thumb.png" {
		t.Errorf("imageUrl = %q", entry.ImageURL)
	}
	patch, ok := st.patches[entry.RecordID]
	if !ok || patch.ThumbnailURL == nil || *patch.ThumbnailURL != entry.ImageURL {
		t.Errorf("record should have been patched with the thumbnail URL, got %+v", patch)
	}
	if len(enricher.calls) != 1 || enricher.calls[0] != entry.RecordID {
		t.Errorf("enricher calls = %v", enricher.calls)
	}
}

func TestRunCSVEnrichmentSoftFailure(t *testing.T) {
	st := newStubStore()
	r := testRunner(st)
	r.Enricher = &stubEnricher{err: errors.New("gave up after 4 attempts")}

	csv := csvHeader + "X,body,coding\n"

	job, err := r.RunCSV(context.Background(), csv, Options{EnrichImages: true})
	if err != nil {
		t.Fatalf("RunCSV: %v", err)
	}

	entry := job.Results[0]
	if entry.Error != "" {
		t.Errorf("enrichment failure must not fail the row, got error %q", entry.Error)
	}
	if entry.RecordID == "" {
		t.Error("record should still have been created")
	}
	if entry.ImageURL != "" {
		t.Errorf("imageUrl should be absent, got %q", entry.ImageURL)
	}
	if job.Summary.Success != 1 {
		t.Errorf("summary = %+v, want the row counted as success", job.Summary)
	}
}

func TestRunCSVEnrichmentSkippedWhenNotRequested(t *testing.T) {
	st := newStubStore()
	r := testRunner(st)
	enricher := &stubEnricher{url: "https://cdn.test/thumb.png"}
	r.Enricher = enricher

	csv := csvHeader + "X,body,coding\n"

	if _, err := r.RunCSV(context.Background(), csv, Options{EnrichImages: false}); err != nil {
		t.Fatalf("RunCSV: %v", err)
	}
	if len(enricher.calls) != 0 {
		t.Errorf("enricher should not be called when enrichment is off, got %v", enricher.calls)
	}
}

func TestRunPreNormalizedRecords(t *testing.T) {
	st := newStubStore()
	r := testRunner(st)

	records := []ingest.RecordInput{
		{Title: "A", Content: "body", Tag: "coding"},
		{Title: "B", Content: "body", Tag: "writing", Views: 7},
	}

	job, err := r.Run(context.Background(), records, Options{ActorID: "u1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Summary.Success != 2 {
		t.Errorf("summary = %+v", job.Summary)
	}
	if st.created[1].Views != 7 {
		t.Errorf("views = %d, want 7", st.created[1].Views)
	}

	if _, err := r.Run(context.Background(), nil, Options{}); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("nil records: err = %v, want ErrEmptyBatch", err)
	}
	if _, err := r.Run(context.Background(), make([]ingest.RecordInput, MaxRows+1), Options{}); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("oversized records: err = %v, want ErrBatchTooLarge", err)
	}
}

func TestRunnerInjectedClock(t *testing.T) {
	st := newStubStore()
	r := testRunner(st)
	r.Clock = func() time.Time { return time.UnixMilli(1234567890123) }

	job, err := r.RunCSV(context.Background(), csvHeader+"X,body,coding\n", Options{})
	if err != nil {
		t.Fatalf("RunCSV: %v", err)
	}
	if !strings.HasPrefix(job.BatchID, "batch-1234567890123-") {
		t.Errorf("batch id %q should use the injected clock", job.BatchID)
	}
}
