// Package encoder talks to the external face-encoder service that turns
// images into fixed-length face encodings.
package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEncoderURL = "http://localhost:8000"
	requestTimeout    = 30 * time.Second
)

// Face is one detected face in a frame.
type Face struct {
	Encoding []float32 `json:"encoding"`
	BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	DetScore float64   `json:"det_score"`
}

// detectResponse is the encoder service's response envelope.
type detectResponse struct {
	Dim   int    `json:"dim"`
	Model string `json:"model"`
	Faces []Face `json:"faces"`
}

// Client computes face encodings using the encoder service.
type Client struct {
	baseURL   string
	expectDim int
	client    *http.Client
}

// NewClient creates a new encoder client. Faces whose encoding length
// differs from expectDim are rejected; zero disables the check.
func NewClient(baseURL string, expectDim int) *Client {
	if baseURL == "" {
		baseURL = defaultEncoderURL
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		expectDim: expectDim,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

// DetectFaces sends a normalized frame to the encoder service and returns
// the detected faces in detection order. An empty slice means no face.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]Face, error) {
	body, err := c.postMultipartImage(ctx, "/faces", imageData)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse encoder response: %w", err)
	}

	expected := c.expectDim
	if expected == 0 {
		expected = resp.Dim
	}
	for i, face := range resp.Faces {
		if expected > 0 && len(face.Encoding) != expected {
			return nil, fmt.Errorf("encoder returned face %d with %d dims, expected %d",
				i, len(face.Encoding), expected)
		}
	}
	return resp.Faces, nil
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "frame.jpg")
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
		return nil, fmt.Errorf("encoder request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoder response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("encoder returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
