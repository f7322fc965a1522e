package ingest

import (
	"fmt"
	"strings"
)

// RequiredColumns lists the columns every bulk upload must provide.
var RequiredColumns = []string{"title", "content", "tag"}

// RecordInput is one validated, defaulted upload row. Counters are
// always non-negative; Tag is stored lower-cased.
type RecordInput struct {
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

	Invisible bool
}

// TotalLaunches sums the per-channel launch counters.
func (r RecordInput) TotalLaunches() int {
	return r.LaunchChatGPT + r.LaunchClaude + r.LaunchGemini + r.LaunchPerplexity
}

// RowError reports a validation failure for a single upload row.
// Row numbers are 1-based and include the header row, matching what the
// uploader sees in a spreadsheet.
type RowError struct {
	Row     int
	Missing []string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: missing required field(s): %s", e.Row, strings.Join(e.Missing, ", "))
}

// HeaderMap resolves logical column names to positions in a data row.
// Lookup is case-insensitive and accepts both camelCase and snake_case
// spellings: canonical keys and observed headers collapse to the same
// form once lower-cased and stripped of underscores, so "customUrl" and
// "custom_url" address the same column.
type HeaderMap map[string]int

// NewHeaderMap builds the map once per batch from the header row.
// The first occurrence of a column wins.
func NewHeaderMap(header []string) HeaderMap {
	hm := make(HeaderMap, len(header))
	for i, name := range header {
		key := headerKey(name)
		if _, ok := hm[key]; !ok {
			hm[key] = i
		}
	}
	return hm
}

func headerKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "")
}

// Lookup returns the raw field under the named column, or "" when the
// column is absent or the row is short.
func (hm HeaderMap) Lookup(row []string, name string) string {
	idx, ok := hm[headerKey(name)]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Missing reports which of the given column names the header lacks.
func (hm HeaderMap) Missing(names ...string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := hm[headerKey(name)]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Normalize maps one data row into a RecordInput, or a RowError when a
// required field is empty after trimming. A row whose cells are all
// empty yields (nil, nil): it is skipped, not rejected, mirroring the
// tokenizer's blank-line handling. rowNum is the 1-based position in
// the upload, header included.
func Normalize(hm HeaderMap, row []string, rowNum int) (*RecordInput, error) {
	if blankRow(row) {
		return nil, nil
	}

	title := strings.TrimSpace(hm.Lookup(row, "title"))
	content := hm.Lookup(row, "content")
	tag := strings.TrimSpace(hm.Lookup(row, "tag"))

	var missing []string
	if title == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(content) == "" {
		missing = append(missing, "content")
	}
	if tag == "" {
		missing = append(missing, "tag")
	}
	if len(missing) > 0 {
		return nil, &RowError{Row: rowNum, Missing: missing}
	}

	return &RecordInput{
		Title:     title,
		Content:   content,
		Tag:       strings.ToLower(tag),
		CustomURL: strings.TrimSpace(hm.Lookup(row, "customUrl")),

		Views:  ParseCount(hm.Lookup(row, "views"), 0),
		Likes:  ParseCount(hm.Lookup(row, "likes"), 0),
		Copied: ParseCount(hm.Lookup(row, "copied"), 0),

		LaunchChatGPT:    ParseCount(hm.Lookup(row, "launchChatgpt"), 0),
		LaunchClaude:     ParseCount(hm.Lookup(row, "launchClaude"), 0),
		LaunchGemini:     ParseCount(hm.Lookup(row, "launchGemini"), 0),
		LaunchPerplexity: ParseCount(hm.Lookup(row, "launchPerplexity"), 0),

		Invisible: ParseFlag(hm.Lookup(row, "isInvisible"), false),
	}, nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
