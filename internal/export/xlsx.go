/**
 * Stream export
 *
 * Turns the stored analyses of one stream into a spreadsheet: one row per
 * analyzed frame, one column per region.
 */

package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hoovercj/streamABLE/internal/logging"
	"github.com/hoovercj/streamABLE/internal/regions"
	"github.com/hoovercj/streamABLE/internal/storage"
)

// SheetName is the worksheet holding the exported analyses
const SheetName = "Analyses"

// AnalysisLister lists the stored analyses of a stream
type AnalysisLister interface {
	ListForStream(ctx context.Context, streamID string, limit int) ([]*storage.AnalysisRecord, error)
}

// Service produces XLSX exports of stored analyses
type Service struct {
	lister AnalysisLister
	logger *logging.Logger
}

// NewService creates an export service
func NewService(lister AnalysisLister, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewLogger("Export")
	}
	return &Service{lister: lister, logger: logger}
}

// StreamXLSX returns a workbook with every analysis of streamID. Region
// columns follow catalog order; regions the catalog does not know are
// appended in the order they are first seen. catalog may be nil.
func (s *Service) StreamXLSX(ctx context.Context, streamID string, catalog *regions.Catalog) ([]byte, error) {
	start := time.Now()

	records, err := s.lister.ListForStream(ctx, streamID, 0)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}

	columns := regionColumns(catalog, records)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, err
	}

	headers := append([]string{"Captured At", "Job ID"}, columns...)
	headers = append(headers, "Failed Regions")
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, err
		}
	}

	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[name] = i + 3
	}

	for r, rec := range records {
		row := r + 2
		write := func(col int, v interface{}) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}

		if !rec.CapturedAt.IsZero() {
			write(1, rec.CapturedAt.UTC().Format(time.RFC3339))
		}
		write(2, rec.JobID)
		for _, result := range rec.Results {
			write(index[result.Name], result.Text)
		}
		write(len(headers), rec.FailedRegions)
	}

	_ = f.SetColWidth(SheetName, "A", "A", 22)
	_ = f.SetColWidth(SheetName, "B", "B", 38)
	if len(columns) > 0 {
		first, _ := excelize.ColumnNumberToName(3)
		last, _ := excelize.ColumnNumberToName(len(columns) + 2)
		_ = f.SetColWidth(SheetName, first, last, 18)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("Stream exported",
		"stream", streamID,
		"rows", len(records),
		"elapsedMs", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func regionColumns(catalog *regions.Catalog, records []*storage.AnalysisRecord) []string {
	var columns []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	if catalog != nil {
		for _, region := range catalog.Regions() {
			add(region.Name)
		}
	}
	for _, rec := range records {
		for _, result := range rec.Results {
			add(result.Name)
		}
	}
	return columns
}
