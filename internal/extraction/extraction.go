// Package extraction talks to the external face embedding service. The
// service detects faces in an image and returns a 128-value descriptor per
// face; this process never touches raw pixels itself.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/faceguard/internal/recognition"
)

const defaultExtractorURL = "http://localhost:8001"

// ErrNoFaceDetected is returned when the image contains no detectable face.
var ErrNoFaceDetected = errors.New("no face detected in image")

// ErrEncodingFailed is returned when a face was detected but no embedding
// could be computed from it.
var ErrEncodingFailed = errors.New("face encoding failed")

// Extractor produces a face embedding from raw image bytes.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) ([]float32, error)
}

// Client is an HTTP Extractor for the face embedding service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an extraction client. An empty baseURL selects the
// default local service address.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultExtractorURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// faceResponse is the service's reply for one image.
type faceResponse struct {
	FacesCount int `json:"faces_count"`
	Faces      []struct {
		Dim       int       `json:"dim"`
		Embedding []float32 `json:"embedding"`
	} `json:"faces"`
}

// Extract posts the image and returns the embedding of the first detected
// face. The result is always exactly recognition.EmbeddingDim values.
func (c *Client) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.FacesCount == 0 || len(resp.Faces) == 0 {
		return nil, ErrNoFaceDetected
	}

	embedding := resp.Faces[0].Embedding
	if len(embedding) == 0 {
		return nil, ErrEncodingFailed
	}
	if len(embedding) != recognition.EmbeddingDim {
		return nil, fmt.Errorf("%w: service returned %d values, want %d",
			recognition.ErrDimensionMismatch, len(embedding), recognition.EmbeddingDim)
	}

	return embedding, nil
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, ErrEncodingFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
