package processor

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/hoovercj/streamABLE/internal/errors"
	"github.com/hoovercj/streamABLE/internal/frame"
	"github.com/hoovercj/streamABLE/internal/logging"
	"github.com/hoovercj/streamABLE/internal/normalize"
	"github.com/hoovercj/streamABLE/internal/regions"
)

// FallbackText is substituted for a region whose OCR failed
func FallbackText(regionName string) string {
	return fmt.Sprintf("Could not find %s", regionName)
}

// FrameAnalyzer crops every catalog region from a frame, recognizes it,
// and normalizes the recognized text.
type FrameAnalyzer struct {
	catalog    *regions.Catalog
	recognizer Recognizer
	normalizer *normalize.Normalizer
	logger     *logging.Logger
}

// NewFrameAnalyzer creates an analyzer. A nil logger gets a default one.
func NewFrameAnalyzer(catalog *regions.Catalog, recognizer Recognizer, logger *logging.Logger) *FrameAnalyzer {
	if logger == nil {
		logger = logging.NewLogger("FrameAnalyzer")
	}
	return &FrameAnalyzer{
		catalog:    catalog,
		recognizer: recognizer,
		normalizer: normalize.New(logger.Info),
		logger:     logger,
	}
}

// Catalog returns the analyzer's region catalog
func (a *FrameAnalyzer) Catalog() *regions.Catalog {
	return a.catalog
}

// AnalyzeFrame decodes frameData and analyzes every region.
// Only frame-level problems return an error.
func (a *FrameAnalyzer) AnalyzeFrame(ctx context.Context, jobID string, frameData []byte) (*AnalysisResult, error) {
	img, format, err := frame.Decode(frameData)
	if err != nil {
		return nil, errors.NewFrameDecodeError(jobID, err)
	}
	b := img.Bounds()
	a.logger.Debug("Decoded frame", "job", jobID, "format", format, "width", b.Dx(), "height", b.Dy())

	return a.AnalyzeNormalized(ctx, jobID, frame.Normalize(img))
}

// AnalyzeNormalized analyzes an already normalized frame. Regions are
// processed in catalog order; a failing region yields FallbackText and the
// pass continues.
func (a *FrameAnalyzer) AnalyzeNormalized(ctx context.Context, jobID string, normalized *image.Gray) (*AnalysisResult, error) {
	start := time.Now()
	catalogRegions := a.catalog.Regions()
	result := &AnalysisResult{
		Catalog: a.catalog.Name(),
		Results: make([]RegionResult, 0, len(catalogRegions)),
	}

	for _, region := range catalogRegions {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewProcessingTimeoutError(jobID, time.Since(start), err)
		}

		text, err := a.analyzeRegion(ctx, jobID, normalized, region)
		if err != nil {
			a.logger.Error("Region analysis failed", "job", jobID, "region", region.Name, "error", err)
			text = FallbackText(region.Name)
			result.FailedRegions++
		}

		result.Results = append(result.Results, RegionResult{Name: region.Name, Text: text})
		a.logger.Debug("Region analyzed", "job", jobID, "region", region.Name, "text", text)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (a *FrameAnalyzer) analyzeRegion(ctx context.Context, jobID string, normalized *image.Gray, region regions.Region) (string, error) {
	cropped, err := frame.Crop(normalized, region.Bounds)
	if err != nil {
		b := normalized.Bounds()
		return "", fmt.Errorf("%w: %v", errors.NewRegionOutOfBoundsError(jobID, region.Name, b.Dx(), b.Dy()), err)
	}

	png, err := frame.EncodePNG(cropped)
	if err != nil {
		return "", err
	}

	raw, err := a.recognizer.Recognize(ctx, png, regions.Whitelist(region.Type))
	if err != nil {
		return "", errors.NewOCRFailedError(jobID, region.Name, err)
	}

	return a.normalizer.Process(raw, region.Type), nil
}
