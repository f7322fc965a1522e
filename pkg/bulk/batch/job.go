package batch

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

// Job is the transient envelope for one pipeline invocation. It is
// never persisted; only the records it creates are.
type Job struct {
	BatchID string        `json:"batchId"`
	Results []ResultEntry `json:"results"`
	Summary Summary       `json:"summary"`
}

// ResultEntry is the outcome of one upload row. RecordID is empty when
// creation failed; Error is empty when the row succeeded. ImageURL is
// set only when enrichment was requested, attempted, and succeeded.
type ResultEntry struct {
	RecordID string `json:"recordId"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Summary aggregates the per-row outcomes. Total counts every processed
// row, including blank rows that produced no entry, so Total can exceed
// Success+Failed.
type Summary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

const batchSuffixLen = 6

// NewBatchID derives a batch identifier from the wall clock plus a
// random base36 suffix: batch-{epochMillis}-{suffix}.
func NewBatchID(now time.Time, rng *rand.Rand) string {
	suffix := strconv.FormatInt(rng.Int63(), 36)
	if len(suffix) > batchSuffixLen {
		suffix = suffix[len(suffix)-batchSuffixLen:]
	}
	return fmt.Sprintf("batch-%d-%s", now.UnixMilli(), suffix)
}
