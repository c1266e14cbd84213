/**
 * Vision Client - Remote region OCR
 *
 * Sends region crops to an HTTP OCR service instead of running Tesseract
 * locally. The character whitelist travels with every request so the
 * service can constrain recognition the same way the local engine does.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hoovercj/streamABLE/internal/logging"
)

// VisionClient handles communication with the remote OCR service
type VisionClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// VisionOCRRequest represents a request to extract text from a region image
type VisionOCRRequest struct {
	Image     string `json:"image"`     // Base64 encoded PNG
	Format    string `json:"format"`    // always "base64"
	Whitelist string `json:"whitelist"` // allowed characters, empty = unrestricted
	Language  string `json:"language"`
}

// VisionOCRResponse represents a response from the OCR endpoint
type VisionOCRResponse struct {
	Success bool          `json:"success"`
	Data    VisionOCRData `json:"data"`
	Message string        `json:"message"`
}

// VisionOCRData contains the extracted text and metadata
type VisionOCRData struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ModelUsed      string  `json:"modelUsed"`
	ProcessingTime int64   `json:"processingTime"` // milliseconds
}

// NewVisionClient creates a new vision OCR client
func NewVisionClient(baseURL string, logger *logging.Logger) *VisionClient {
	if logger == nil {
		logger = logging.NewLogger("VisionClient")
	}
	return &VisionClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second, // one small region per request
		},
		logger: logger,
	}
}

// Recognize extracts text from a PNG region restricted to whitelist
func (c *VisionClient) Recognize(ctx context.Context, image []byte, whitelist string) (string, error) {
	resp, err := c.ExtractText(ctx, &VisionOCRRequest{
		Image:     base64.StdEncoding.EncodeToString(image),
		Format:    "base64",
		Whitelist: whitelist,
		Language:  "en",
	})
	if err != nil {
		return "", err
	}
	return resp.Data.Text, nil
}

// ExtractText calls the OCR endpoint
func (c *VisionClient) ExtractText(ctx context.Context, req *VisionOCRRequest) (*VisionOCRResponse, error) {
	endpoint := fmt.Sprintf("%s/api/vision/extract-text", c.baseURL)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "streamable-worker")
	httpReq.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to vision service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision service returned error status %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp VisionOCRResponse
	if err := json.Unmarshal(body, &ocrResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !ocrResp.Success {
		return nil, fmt.Errorf("vision operation failed: %s", ocrResp.Message)
	}

	c.logger.Debug("Text extraction complete",
		"modelUsed", ocrResp.Data.ModelUsed,
		"confidence", ocrResp.Data.Confidence,
		"processingTime", ocrResp.Data.ProcessingTime,
		"textLength", len(ocrResp.Data.Text))

	return &ocrResp, nil
}

// HealthCheck verifies the vision service is available
func (c *VisionClient) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, c.baseURL+"/api/health")
}

func healthCheck(ctx context.Context, client *http.Client, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
