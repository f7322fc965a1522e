// Command csv-lint checks a bulk upload CSV without persisting
// anything: it tokenizes the file, verifies the header, and reports
// every row that would fail validation.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/promptdeck/promptdeck/pkg/bulk/batch"
	"github.com/promptdeck/promptdeck/pkg/bulk/ingest"
)

func main() {
	csvPath := flag.String("csv", "", "Upload CSV path (required)")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("--csv required")
	}

	text, err := os.ReadFile(*csvPath)
	if err != nil {
		log.Fatal(err)
	}

	rows := ingest.SplitRows(string(text))
	if len(rows) < 2 {
		log.Fatal("upload has no data rows")
	}
	header, data := rows[0], rows[1:]

	if len(data) > batch.MaxRows {
		log.Fatalf("upload has %d data rows; the limit is %d", len(data), batch.MaxRows)
	}

	hm := ingest.NewHeaderMap(header)
	if missing := hm.Missing(ingest.RequiredColumns...); len(missing) > 0 {
		log.Fatalf("header lacks required column(s): %s", strings.Join(missing, ", "))
	}

	var ok, blank, bad int
	for i, row := range data {
		rec, err := ingest.Normalize(hm, row, i+2)
		switch {
		case err != nil:
			bad++
			fmt.Println(err)
		case rec == nil:
			blank++
		default:
			ok++
		}
	}

	fmt.Printf("%d rows: %d valid, %d invalid, %d blank\n", len(data), ok, bad, blank)
	if bad > 0 {
		os.Exit(1)
	}
}
