// Package client submits JSON files to the upload endpoint and renders the
// analysis result
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrUpload is what callers show the user for any failed round trip
var ErrUpload = errors.New("there was an error")

// StatusError is a non-200 answer from the server
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server answered %d: %s", ErrUpload, e.Code, strings.TrimSpace(e.Body))
}

func (e *StatusError) Unwrap() error { return ErrUpload }

type Uploader struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Uploader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Uploader{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient}
}

// ReadJSONFile loads path and checks it holds one JSON document
func ReadJSONFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%s is not valid JSON: %w", path, err)
	}
	return b, nil
}

// UploadFile reads path and submits it to /upload
func (u *Uploader) UploadFile(ctx context.Context, path string) (json.RawMessage, error) {
	payload, err := ReadJSONFile(path)
	if err != nil {
		return nil, err
	}
	return u.Upload(ctx, payload)
}

// Upload submits payload to /upload and returns the analysis result
func (u *Uploader) Upload(ctx context.Context, payload []byte) (json.RawMessage, error) {
	return u.post(ctx, "/upload", payload)
}

// Explain submits an analysis result to /explain
func (u *Uploader) Explain(ctx context.Context, result json.RawMessage) (json.RawMessage, error) {
	return u.post(ctx, "/explain", result)
}

func (u *Uploader) post(ctx context.Context, path string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := u.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUpload, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: response is not JSON", ErrUpload)
	}
	return json.RawMessage(data), nil
}

// Render writes result indented by two spaces
func Render(w io.Writer, result json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
