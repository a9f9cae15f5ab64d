// Package remote fetches contract workbooks from external sources, currently
// Google Drive spreadsheet exports.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrFetchFailed wraps any transport or upstream failure so callers can map
// it to a gateway error.
var ErrFetchFailed = errors.New("remote fetch failed")

// Default configuration values.
const (
	DefaultTimeout    = 45 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxBytes   = 64 << 20
)

// driveExportPath is the spreadsheet export endpoint; %s is the file id.
const (
	defaultBaseURL  = "https://docs.google.com"
	driveExportPath = "/spreadsheets/d/%s/export?format=xlsx"
)

// Workbook is a fetched spreadsheet ready for the loader.
type Workbook struct {
	Name      string
	Data      []byte
	FetchedAt time.Time
}

// WorkbookFetcher retrieves the current contracts workbook.
type WorkbookFetcher interface {
	Fetch(ctx context.Context) (*Workbook, error)
}

// DriveClient downloads a spreadsheet from Google Drive as xlsx.
type DriveClient struct {
	fileID     string
	baseURL    string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxBytes   int64
	now        func() time.Time
}

// ClientOption configures DriveClient.
type ClientOption func(*DriveClient)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *DriveClient) { c.client = client }
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *DriveClient) { c.maxRetries = n }
}

// WithRetryDelay sets the delay between attempts.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *DriveClient) { c.retryDelay = d }
}

// WithMaxBytes caps the accepted download size.
func WithMaxBytes(n int64) ClientOption {
	return func(c *DriveClient) { c.maxBytes = n }
}

// WithClock overrides the fetch timestamp source.
func WithClock(now func() time.Time) ClientOption {
	return func(c *DriveClient) { c.now = now }
}

// WithBaseURL overrides the Drive host, mainly for tests.
func WithBaseURL(base string) ClientOption {
	return func(c *DriveClient) { c.baseURL = base }
}

// NewDriveClient creates a fetcher for the given Drive file id.
func NewDriveClient(fileID string, opts ...ClientOption) *DriveClient {
	c := &DriveClient{
		fileID:     fileID,
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxBytes:   DefaultMaxBytes,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads the workbook, retrying transient failures. Context
// cancellation aborts between attempts and during the request itself.
func (c *DriveClient) Fetch(ctx context.Context) (*Workbook, error) {
	url := c.baseURL + fmt.Sprintf(driveExportPath, c.fileID)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		data, err := c.download(ctx, url)
		if err == nil {
			return &Workbook{
				Name:      "drive_" + c.fileID,
				Data:      data,
				FetchedAt: c.now().UTC(),
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrFetchFailed, lastErr)
}

func (c *DriveClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("download exceeds %d bytes", c.maxBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty response body")
	}
	return data, nil
}
