package ingest

import "strings"

// SplitRows converts raw upload text into ordered rows of fields.
// Fields wrapped in double quotes may contain commas, line breaks, and
// doubled quotes ("" emits one literal quote). The scanner has exactly
// two states: normal and in-quotes.
//
// Lines that would produce an empty row contribute nothing, so uploads
// with trailing newlines or blank separator lines tokenize cleanly.
// An unterminated quote is treated permissively: the remainder of the
// input becomes part of the current field.
func SplitRows(text string) [][]string {
	var rows [][]string
	var fields []string
	var current strings.Builder
	inQuotes := false

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if inQuotes {
			if ch == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					// Escaped quote: emit one literal " and stay quoted.
					current.WriteRune('"')
					i++
				} else {
					inQuotes = false
				}
			} else {
				current.WriteRune(ch)
			}
			continue
		}

		switch ch {
		case '"':
			inQuotes = true
		case ',':
			fields = append(fields, current.String())
			current.Reset()
		case '\n', '\r':
			// Collapse \r\n to a single terminator.
			if ch == '\r' && i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			if current.Len() == 0 && len(fields) == 0 {
				// Blank line: no row.
				continue
			}
			fields = append(fields, current.String())
			current.Reset()
			rows = append(rows, fields)
			fields = nil
		default:
			current.WriteRune(ch)
		}
	}

	// Flush any in-progress field and row at end of input.
	if current.Len() > 0 || len(fields) > 0 {
		fields = append(fields, current.String())
		rows = append(rows, fields)
	}

	return rows
}
