// Package savedata talks to the file service that stores result files by
// year. Grids are uploaded there so the simulation runner can load them by
// filename.
package savedata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/pvgrid-cache/internal/blobstore"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
)

const maxArtifactBytes = 1 << 30

// StatusError is a non-2xx reply other than a plain 404.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("savedata %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewOutbound(0)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Exists requests GET /getFile for the first byte only; the service has no
// cheaper existence check scoped to a year. A server that ignores Range still
// answers 200, and the body is closed unread.
func (c *Client) Exists(ctx context.Context, key blobstore.ObjectKey) (bool, error) {
	resp, err := c.getFile(ctx, key, "bytes=0-0")
	if err != nil {
		return false, err
	}
	defer c.closeBody(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode/100 == 2:
		return true, nil
	default:
		return false, statusError("exists", resp)
	}
}

func (c *Client) Get(ctx context.Context, key blobstore.ObjectKey) ([]byte, error) {
	resp, err := c.getFile(ctx, key, "")
	if err != nil {
		return nil, err
	}
	defer c.closeBody(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil, blobstore.ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return nil, statusError("get", resp)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return nil, fmt.Errorf("savedata read %s: %w", key.Key(), err)
	}
	return b, nil
}

// Put uploads the artifact as a multipart file. The resolutions and year are
// sent both as form fields and in the query string.
func (c *Client) Put(ctx context.Context, key blobstore.ObjectKey, data []byte) error {
	fields := map[string]string{
		"year":        strconv.Itoa(key.Year),
		"azimuth_res": strconv.Itoa(key.AzimuthRes),
		"slope_res":   strconv.Itoa(key.SlopeRes),
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range []string{"year", "azimuth_res", "slope_res"} {
		if err := w.WriteField(name, fields[name]); err != nil {
			return fmt.Errorf("savedata form %s: %w", name, err)
		}
	}
	fw, err := w.CreateFormFile("file", key.Filename())
	if err != nil {
		return fmt.Errorf("savedata form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("savedata form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("savedata form close: %w", err)
	}

	q := url.Values{}
	for k, v := range fields {
		q.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/saveDataFile?"+q.Encode(), &body)
	if err != nil {
		return fmt.Errorf("savedata request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("savedata put %s: %w", key.Key(), err)
	}
	defer c.closeBody(resp)
	if resp.StatusCode/100 != 2 {
		return statusError("put", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getFile(ctx context.Context, key blobstore.ObjectKey, byteRange string) (*http.Response, error) {
	q := url.Values{}
	q.Set("filename", key.Filename())
	q.Set("year", strconv.Itoa(key.Year))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/getFile?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("savedata request: %w", err)
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("savedata get %s: %w", key.Key(), err)
	}
	return resp, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observability.ObserveUpstreamLatency("savedata", time.Since(start).Seconds())
	return resp, err
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Warn("close savedata body", "err", err)
	}
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
