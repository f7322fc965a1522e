// Command bulk-import runs a CSV upload through the bulk ingestion
// pipeline against a local SQLite store and prints the result envelope
// as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/promptdeck/promptdeck/internal/blob"
	"github.com/promptdeck/promptdeck/internal/identity"
	"github.com/promptdeck/promptdeck/internal/imagegen"
	"github.com/promptdeck/promptdeck/pkg/bulk/batch"
	"github.com/promptdeck/promptdeck/pkg/bulk/config"
	"github.com/promptdeck/promptdeck/pkg/bulk/store/sqlite"
)

func main() {
	var (
		csvPath = flag.String("csv", "", "Upload CSV path (required)")
		cfgPath = flag.String("config", "", "YAML config path (optional)")
		enrich  = flag.Bool("enrich", false, "Generate a thumbnail per created record")
		actor   = flag.String("actor", "bulk-import", "Author id stamped on created records")
	)
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("--csv required")
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatal(err)
		}
	}

	text, err := os.ReadFile(*csvPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	st, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer zlog.Sync()
	sugar := zlog.Sugar()

	runner := &batch.Runner{
		Store:  st,
		Logger: sugar,
		Pace:   rate.NewLimiter(rate.Every(cfg.Batch.InterRecordDelay()), 1),
	}

	if *enrich {
		if cfg.Enrichment.Endpoint == "" {
			log.Fatal("--enrich requires enrichment.endpoint in the config")
		}
		tokens := tokenSource()
		runner.Enricher = &imagegen.Client{
			Endpoint:        cfg.Enrichment.Endpoint,
			Tokens:          tokens,
			Blobs:           &blob.GCS{Bucket: cfg.Enrichment.Bucket, Tokens: tokens},
			Logger:          sugar,
			BaseDelay:       cfg.Enrichment.BaseDelay(),
			MaxRetries:      cfg.Enrichment.MaxRetries,
			PromptPrefixLen: cfg.Enrichment.PromptPrefixLen,
		}
	}

	job, err := runner.RunCSV(ctx, string(text), batch.Options{
		EnrichImages: *enrich,
		ActorID:      *actor,
	})
	if err != nil {
		log.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(job); err != nil {
		log.Fatal(err)
	}
	if job.Summary.Failed > 0 {
		os.Exit(1)
	}
}

// tokenSource prefers an explicit token from the environment and falls
// back to the metadata server when running on GCE.
func tokenSource() identity.TokenSource {
	if tok := os.Getenv("PROMPTDECK_TOKEN"); tok != "" {
		return identity.Static(tok)
	}
	return &identity.Metadata{}
}
