// Package simrunner calls the numerical simulation runner, which combines a
// stored weather/grid file with a demand profile.
package simrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/pvgrid-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
)

const maxResponseBytes = 16 << 20

// Job is one simulation run.
type Job struct {
	Azimuth     int
	Slope       int
	Year        int
	WeatherData string // filename in the blob store, under Year
	Demand      *File
}

type File struct {
	Name string
	Data []byte
}

// RunnerError is a run the runner accepted but could not complete, either a
// non-2xx status or a 2xx body carrying an "error" field.
type RunnerError struct {
	StatusCode int
	Message    string
}

func (e *RunnerError) Error() string {
	if e.StatusCode != 0 && e.StatusCode/100 != 2 {
		return fmt.Sprintf("simulation runner: status %d: %s", e.StatusCode, e.Message)
	}
	return "simulation runner: " + e.Message
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		// simulations are slow; the runner shells out to a numeric solver
		httpClient = httpclient.NewOutbound(5 * time.Minute)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient, logger: logger}
}

// Run posts the job to /runMatlab and returns the runner's JSON reply.
func (c *Client) Run(ctx context.Context, job Job) (json.RawMessage, error) {
	if job.Demand == nil {
		return nil, errors.New("simulation runner: demand profile is required")
	}
	if job.WeatherData == "" {
		return nil, errors.New("simulation runner: weather data filename is required")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := [][2]string{
		{"azimuth", strconv.Itoa(job.Azimuth)},
		{"slope", strconv.Itoa(job.Slope)},
		{"weatherData", job.WeatherData},
		{"year", strconv.Itoa(job.Year)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("simulation form %s: %w", f[0], err)
		}
	}
	fw, err := w.CreateFormFile("demandProfile", job.Demand.Name)
	if err != nil {
		return nil, fmt.Errorf("simulation form file: %w", err)
	}
	if _, err := fw.Write(job.Demand.Data); err != nil {
		return nil, fmt.Errorf("simulation form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("simulation form close: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/runMatlab", &body)
	if err != nil {
		return nil, fmt.Errorf("simulation request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observability.ObserveUpstreamLatency("simulation", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("simulation runner: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", "err", cerr)
		}
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("simulation runner read: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &RunnerError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	}

	var envelope struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, &RunnerError{StatusCode: resp.StatusCode, Message: "response is not JSON"}
	}
	if envelope.Error != nil {
		return nil, &RunnerError{StatusCode: resp.StatusCode, Message: *envelope.Error}
	}
	return json.RawMessage(b), nil
}
