/**
 * OCR Types - Shared data structures for frame analysis
 *
 * Common types used by the Tesseract engine, the remote vision client
 * and the frame analyzer.
 */

package processor

import (
	"context"
	"time"
)

// Recognizer is an OCR engine restricted to a character whitelist.
// image is a PNG-encoded region crop.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, whitelist string) (string, error)
}

// RecognizerFunc adapts a function to Recognizer
type RecognizerFunc func(ctx context.Context, image []byte, whitelist string) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, image []byte, whitelist string) (string, error) {
	return f(ctx, image, whitelist)
}

// RegionResult is the cleaned text of one region in one analysis pass
type RegionResult struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// AnalysisResult represents the outcome of analyzing one frame
type AnalysisResult struct {
	Catalog       string
	Results       []RegionResult // catalog order, one per region
	FailedRegions int
	Duration      time.Duration
}
