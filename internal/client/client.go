package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/fmueller/voxapi/internal/transcription"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultEndpoint    = "http://localhost:8000/transcription"
	DefaultContentType = "audio/wav"

	requestIDHeader = "X-Request-Id"
)

type Client struct {
	Endpoint   string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Request struct {
	FilePath    string
	ContentType string
	// Model is sent only when non-empty so the server default applies.
	Model string
}

type Response struct {
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
	RequestID  string
}

// Result decodes a successful response body.
func (r Response) Result() (transcription.Result, error) {
	var result transcription.Result
	if r.StatusCode != http.StatusOK {
		return result, fmt.Errorf("server returned %d: %s", r.StatusCode, strings.TrimSpace(string(r.Body)))
	}
	if err := json.Unmarshal(r.Body, &result); err != nil {
		return result, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

// Transcribe uploads the file as the "file" part of a multipart form. A
// non-2xx answer is not an error; callers inspect StatusCode.
func (c *Client) Transcribe(ctx context.Context, req Request) (Response, error) {
	payload, err := os.ReadFile(req.FilePath)
	if err != nil {
		return Response{}, fmt.Errorf("read audio file: %w", err)
	}

	body, contentType, err := encodeForm(payload, req)
	if err != nil {
		return Response{}, err
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, requestID)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c.log().Debug("posting audio",
		zap.String("endpoint", endpoint),
		zap.String("file", req.FilePath),
		zap.Int("bytes", len(payload)),
		zap.String("request_id", requestID),
	)

	started := time.Now()
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	return Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Elapsed:    time.Since(started),
		RequestID:  requestID,
	}, nil
}

func encodeForm(payload []byte, req Request) (*bytes.Buffer, string, error) {
	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	if model := strings.TrimSpace(req.Model); model != "" {
		if err := mw.WriteField("model", model); err != nil {
			return nil, "", fmt.Errorf("write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

func (c *Client) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
