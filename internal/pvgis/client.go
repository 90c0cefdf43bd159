// Package pvgis is a client for the PVGIS seriescalc endpoint. One call
// fetches the hourly PV output of a single panel orientation for one year.
package pvgis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mohammed-shakir/pvgrid-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
)

const (
	DefaultBaseURL = "https://re.jrc.ec.europa.eu/api/v5_2"

	// a full year of hourly records is well under this
	maxBodyBytes = 32 << 20
)

type Options struct {
	BaseURL      string
	PeakPowerKWp float64
	Loss         float64
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client issues seriescalc requests. It never retries and never touches disk;
// callers decide what to do with TransportError and MalformedResponseError.
type Client struct {
	baseURL    string
	peakPower  float64
	loss       float64
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		peakPower:  opts.PeakPowerKWp,
		loss:       opts.Loss,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.peakPower <= 0 {
		c.peakPower = 1
	}
	if c.loss <= 0 {
		c.loss = 14
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.NewOutbound(opts.Timeout)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Fetch performs one seriescalc call and extracts the hourly power column.
func (c *Client) Fetch(ctx context.Context, q Query) (Hourly, error) {
	u := c.baseURL + "/seriescalc?" + q.params(c.peakPower, c.loss).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Hourly{}, &TransportError{Slope: q.Slope, Azimuth: q.Azimuth, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	done := observability.FetchStarted()
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observability.ObserveUpstreamLatency("pvgis", time.Since(start).Seconds())
	done()
	if err != nil {
		return Hourly{}, &TransportError{Slope: q.Slope, Azimuth: q.Azimuth, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", "err", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Hourly{}, &TransportError{
			StatusCode: resp.StatusCode,
			Slope:      q.Slope,
			Azimuth:    q.Azimuth,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Hourly{}, &TransportError{Slope: q.Slope, Azimuth: q.Azimuth, Err: fmt.Errorf("read body: %w", err)}
	}

	h, reason := parse(body)
	if reason != "" {
		c.logger.DebugContext(ctx, "pvgis malformed response", "query", q.String(), "reason", reason, "bytes", len(body))
		return Hourly{}, &MalformedResponseError{Slope: q.Slope, Azimuth: q.Azimuth, Reason: reason}
	}
	return h, nil
}

// parse extracts outputs.hourly[*].P (or P_ac). A non-empty reason means the
// body is unusable.
func parse(body []byte) (Hourly, string) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Hourly{}, "empty body"
	}

	// some deployments wrap the document in a one-element array
	if body[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(body, &docs); err != nil {
			return Hourly{}, "undecodable body: " + err.Error()
		}
		if len(docs) == 0 {
			return Hourly{}, "empty top-level list"
		}
		body = docs[0]
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Hourly{}, "undecodable body: " + err.Error()
	}
	if env.Outputs == nil {
		return Hourly{}, "missing outputs"
	}
	raw := bytes.TrimSpace(env.Outputs.Hourly)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Hourly{}, "missing outputs.hourly"
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return Hourly{}, "outputs.hourly is not a list"
	}
	if len(rows) == 0 {
		return Hourly{}, "outputs.hourly is empty"
	}

	var first map[string]json.RawMessage
	if err := json.Unmarshal(rows[0], &first); err != nil {
		return Hourly{}, "outputs.hourly[0] is not an object"
	}
	field := ""
	for _, f := range []string{FieldP, FieldPAC} {
		if _, ok := first[f]; ok {
			field = f
			break
		}
	}
	if field == "" {
		return Hourly{}, "no power field (P or P_ac) in outputs.hourly[0]"
	}

	values := make([]json.RawMessage, len(rows))
	for i, row := range rows {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(row, &m); err != nil {
			// left nil; normalisation treats it as non-numeric
			continue
		}
		values[i] = m[field]
	}
	return Hourly{Field: field, Values: values}, ""
}
