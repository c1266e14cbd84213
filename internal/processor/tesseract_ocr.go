/**
 * Tesseract OCR - Local region recognition
 *
 * Runs Tesseract in-process through gosseract. Each call gets its own
 * client, since a gosseract client is not safe for concurrent use.
 */

package processor

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractOCR handles region OCR using Tesseract
type TesseractOCR struct {
	language    string
	tessdataDir string
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language    string
	TessdataDir string
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) *TesseractOCR {
	language := cfg.Language
	if language == "" {
		language = "eng"
	}

	return &TesseractOCR{
		language:    language,
		tessdataDir: cfg.TessdataDir,
	}
}

// Recognize performs OCR on a PNG region restricted to whitelist
func (t *TesseractOCR) Recognize(ctx context.Context, image []byte, whitelist string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.tessdataDir != "" {
		client.TessdataPrefix = t.tessdataDir
	}

	if err := client.SetLanguage(t.language); err != nil {
		return "", fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Scoreboard fields are single lines of text
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", fmt.Errorf("failed to set PSM: %w", err)
	}

	if whitelist != "" {
		if err := client.SetWhitelist(whitelist); err != nil {
			return "", fmt.Errorf("failed to set whitelist: %w", err)
		}
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return text, nil
}
