package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"knowflow/config"
	"knowflow/internal/bootstrap"
	"knowflow/internal/logging"
	"knowflow/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Directory with documents (and knowflow.yaml)")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	runs := flag.Int("runs", 5, "Repeated searches for latency measurement")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./docs -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Indexing cost (files, pages, chunks, build time)")
		fmt.Println("  2. Semantic similarity of the top matches")
		fmt.Println("  3. Query latency, cold and cached")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init("warn", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	app, err := bootstrap.New(cfg, *dir, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building pipeline: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx := context.Background()
	snap, err := app.Load(ctx, *dir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error indexing: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("SEMANTIC SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("Files: %d  Pages: %d  Chunks: %d\n", snap.Stats.Files, snap.Stats.Pages, snap.Stats.Chunks)
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", snap.Stats.Dimension)
	fmt.Printf("Build time: %s\n", snap.Stats.Duration.Round(time.Millisecond))
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	chunks, err := app.Retrieve.Retrieve(ctx, *query, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	cold := time.Since(start)

	var warm time.Duration
	for i := 0; i < *runs; i++ {
		start := time.Now()
		if _, err := app.Retrieve.Retrieve(ctx, *query, *topK); err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		warm += time.Since(start)
	}

	results := usecase.ToResults(chunks)
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}

	fmt.Printf("Top %d semantic matches:\n\n", len(results))

	totalScore := 0.0
	for i, r := range results {
		preview := []rune(strings.ReplaceAll(r.Text, "\n", " "))
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}

		totalScore += r.Score

		rating := "LOW"
		if r.Score > 0.7 {
			rating = "HIGH"
		} else if r.Score > 0.5 {
			rating = "GOOD"
		} else if r.Score > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s p.%d\n", i+1, rating, r.Score, r.Source, r.Page)
		fmt.Printf("   %s\n\n", string(preview))
	}

	avgScore := totalScore / float64(len(results))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)
	fmt.Printf("  Cold query:         %s\n", cold.Round(time.Microsecond))
	if *runs > 0 {
		fmt.Printf("  Repeat query (avg): %s\n", (warm / time.Duration(*runs)).Round(time.Microsecond))
	}

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - semantic search working well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need a better embedding model or chunk size")
	}
}
