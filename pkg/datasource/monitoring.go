package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"

	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
)

// MonitoringReadScope is the OAuth scope needed to list time series.
const MonitoringReadScope = "https://www.googleapis.com/auth/monitoring.read"

const maxErrorBody = 4 << 10

// MonitoringClient lists time series from the Cloud Monitoring v3 REST API.
type MonitoringClient struct {
	endpoint   string
	userAgent  string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures a MonitoringClient.
type ClientOption func(*MonitoringClient)

// WithEndpoint overrides the API base URL, e.g. for tests.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *MonitoringClient) { c.endpoint = endpoint }
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *MonitoringClient) { c.userAgent = ua }
}

// WithPageSize sets the pageSize parameter. Zero leaves it to the server.
func WithPageSize(n int) ClientOption {
	return func(c *MonitoringClient) { c.pageSize = n }
}

// WithHTTPClient replaces the authenticated client, skipping credential lookup.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *MonitoringClient) { c.httpClient = hc }
}

// WithRateLimit caps outgoing page requests. qps <= 0 disables the limit.
func WithRateLimit(qps float64, burst int) ClientOption {
	return func(c *MonitoringClient) {
		if qps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
}

// NewMonitoringClient builds a client. Unless WithHTTPClient is given it uses
// Application Default Credentials with the monitoring.read scope.
func NewMonitoringClient(ctx context.Context, opts ...ClientOption) (*MonitoringClient, error) {
	c := &MonitoringClient{
		endpoint: "https://monitoring.googleapis.com/v3",
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		ts, err := google.DefaultTokenSource(ctx, MonitoringReadScope)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeConfig, "failed to find default credentials", err)
		}
		c.httpClient = oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, ts))
	}

	return c, nil
}

func (c *MonitoringClient) Name() string {
	return "cloud-monitoring"
}

// ListTimeSeries fetches every page for the request. A response without
// series is a success with no data.
func (c *MonitoringClient) ListTimeSeries(ctx context.Context, req Request) ([]TimeSeries, error) {
	base, err := url.Parse(fmt.Sprintf("%s/projects/%s/timeSeries", c.endpoint, url.PathEscape(req.ProjectID)))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfig, "invalid monitoring endpoint", err)
	}
	params := c.queryParams(req)

	var (
		series    []TimeSeries
		pageToken string
	)
	for {
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		base.RawQuery = params.Encode()

		page, err := c.listPage(ctx, base.String())
		if err != nil {
			return nil, apperrors.WrapWithContext(apperrors.CodeOf(err), "list time series failed", err,
				map[string]any{"metric": req.Query.Metric, "namespace": req.Namespace})
		}
		series = append(series, page.TimeSeries...)

		if page.NextPageToken == "" {
			return series, nil
		}
		if page.NextPageToken == pageToken {
			return nil, apperrors.New(apperrors.ErrCodeData, "monitoring API repeated page token "+pageToken)
		}
		pageToken = page.NextPageToken
	}
}

func (c *MonitoringClient) queryParams(req Request) url.Values {
	q := req.Query
	params := url.Values{}
	params.Set("filter", BuildFilter(q, req.Namespace, req.ExcludeContainers))
	params.Set("interval.startTime", req.Window.Start.UTC().Format(time.RFC3339))
	params.Set("interval.endTime", req.Window.End.UTC().Format(time.RFC3339))
	params.Set("aggregation.alignmentPeriod", strconv.FormatInt(int64(req.Window.AlignmentPeriod/time.Second), 10)+"s")
	params.Set("aggregation.perSeriesAligner", q.PerSeriesAligner)
	params.Set("aggregation.crossSeriesReducer", q.CrossSeriesReducer)
	for _, f := range q.GroupByFields() {
		params.Add("aggregation.groupByFields", f)
	}
	params.Set("view", "FULL")
	if c.pageSize > 0 {
		params.Set("pageSize", strconv.Itoa(c.pageSize))
	}
	return params
}

func (c *MonitoringClient) listPage(ctx context.Context, u string) (*listResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classifyTransport(ctx, err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfig, "failed to build request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperrors.Wrap(apperrors.ErrCodeTransport, "monitoring API rejected request",
			&APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(body)})
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		if ctx.Err() != nil {
			return nil, classifyTransport(ctx, err)
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeData, "failed to decode time series response", err)
	}
	return &page, nil
}

// APIError is a non-200 response from the monitoring API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("monitoring API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("monitoring API returned status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the API is worth asking again: throttling,
// request timeouts and server errors are, other client errors are not.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// IsRetryable reports whether err from ListTimeSeries may succeed on retry.
// Configuration errors and rejected requests are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return !apperrors.IsCode(err, apperrors.ErrCodeConfig)
}

func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Status != "" {
			return envelope.Error.Status + ": " + envelope.Error.Message
		}
		return envelope.Error.Message
	}
	return string(body)
}

func classifyTransport(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(apperrors.ErrCodeTimeout, "monitoring request timed out", err)
	}
	return apperrors.Wrap(apperrors.ErrCodeTransport, "monitoring request failed", err)
}
