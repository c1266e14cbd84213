/**
 * StreamABLE Analyze - one-shot frame analysis
 *
 * Runs the region pipeline over a single frame file and prints one
 * "name: text" line per region in catalog order. Useful for tuning
 * region bounds against captured frames.
 */

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/hoovercj/streamABLE/internal/clients"
	"github.com/hoovercj/streamABLE/internal/logging"
	"github.com/hoovercj/streamABLE/internal/processor"
	"github.com/hoovercj/streamABLE/internal/regions"
	"github.com/hoovercj/streamABLE/internal/storage"
)

func main() {
	var (
		framePath = flag.String("frame", "", "frame image to analyze (required)")
		catalog   = flag.String("catalog", regions.LoLTournament.Name(), "region catalog")
		language  = flag.String("lang", "eng", "tesseract language")
		tessdata  = flag.String("tessdata", os.Getenv("TESSDATA_PREFIX"), "tessdata directory")
		visionURL = flag.String("vision-url", "", "remote vision OCR service (replaces tesseract)")
		sqlite    = flag.String("sqlite", "", "also store the analysis in this SQLite database")
		streamID  = flag.String("stream", "local", "stream ID recorded with a stored analysis")
		asJSON    = flag.Bool("json", false, "print results as JSON")
		logLevel  = flag.String("log-level", "warn", "log level (debug, info, warn, error, none)")
	)
	flag.Parse()

	if *framePath == "" {
		fmt.Fprintln(os.Stderr, "Error: -frame is required")
		flag.Usage()
		os.Exit(2)
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logging.SetDefaultLevel(level)

	if err := run(context.Background(), os.Stdout, &options{
		framePath: *framePath,
		catalog:   *catalog,
		language:  *language,
		tessdata:  *tessdata,
		visionURL: *visionURL,
		sqlite:    *sqlite,
		streamID:  *streamID,
		asJSON:    *asJSON,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	framePath string
	catalog   string
	language  string
	tessdata  string
	visionURL string
	sqlite    string
	streamID  string
	asJSON    bool
}

func run(ctx context.Context, out io.Writer, opts *options) error {
	catalog, err := regions.Lookup(opts.catalog)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.framePath)
	if err != nil {
		return fmt.Errorf("failed to read frame: %w", err)
	}

	var recognizer processor.Recognizer
	if opts.visionURL != "" {
		recognizer = clients.NewVisionClient(opts.visionURL, nil)
	} else {
		recognizer = processor.NewTesseractOCR(&processor.TesseractConfig{
			Language:    opts.language,
			TessdataDir: opts.tessdata,
		})
	}

	cfg := &processor.ProcessorConfig{
		Analyzer: processor.NewFrameAnalyzer(catalog, recognizer, nil),
	}
	if opts.sqlite != "" {
		sm, err := storage.NewStorageManager(ctx, storage.DriverSQLite, opts.sqlite)
		if err != nil {
			return err
		}
		defer sm.Close()
		cfg.Store = sm
	}

	proc, err := processor.NewFrameProcessor(cfg)
	if err != nil {
		return err
	}

	result, err := proc.ProcessFrame(ctx, &processor.ProcessRequest{
		JobID:       uuid.New().String(),
		StreamID:    opts.streamID,
		FrameBuffer: data,
		CapturedAt:  time.Now(),
	})
	if err != nil {
		return err
	}

	return printResult(out, result, opts.asJSON)
}

func printResult(out io.Writer, result *processor.ProcessResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	for _, r := range result.Results {
		if _, err := fmt.Fprintf(out, "%s: %s\n", r.Name, r.Text); err != nil {
			return err
		}
	}
	if result.AnalysisID != "" {
		_, err := fmt.Fprintf(out, "stored as %s\n", result.AnalysisID)
		return err
	}
	return nil
}
