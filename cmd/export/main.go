/**
 * StreamABLE Export - stream analyses to XLSX
 *
 * Reads the stored analyses of one stream and writes them to a workbook.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hoovercj/streamABLE/internal/config"
	"github.com/hoovercj/streamABLE/internal/export"
	"github.com/hoovercj/streamABLE/internal/logging"
	"github.com/hoovercj/streamABLE/internal/regions"
	"github.com/hoovercj/streamABLE/internal/storage"
)

func main() {
	// DATABASE_DRIVER and DATABASE_URL may come from the worker's env file
	_ = config.LoadEnvFile(config.EnvFile)

	var (
		driver   = flag.String("driver", envOr("DATABASE_DRIVER", storage.DriverPostgres), "database driver (postgres, sqlite)")
		dsn      = flag.String("db", os.Getenv("DATABASE_URL"), "database URL")
		streamID = flag.String("stream", "", "stream to export (required)")
		catalog  = flag.String("catalog", regions.LoLTournament.Name(), "catalog that orders the region columns")
		out      = flag.String("out", "", "output XLSX path (default <stream>.xlsx)")
	)
	flag.Parse()

	if *streamID == "" {
		fmt.Fprintln(os.Stderr, "Error: -stream is required")
		flag.Usage()
		os.Exit(2)
	}
	if *out == "" {
		*out = *streamID + ".xlsx"
	}

	cat, err := regions.Lookup(*catalog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx := context.Background()
	sm, err := storage.NewStorageManager(ctx, *driver, *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer sm.Close()

	data, err := export.NewService(sm, logging.NewLogger("Export")).StreamXLSX(ctx, *streamID, cat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
