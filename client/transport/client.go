// Package transport implements the blocking HTTP calls made against the
// experiment service: signed URL acquisition, package upload, status polling
// and result download. Nothing here retries; every failure is returned as a
// network error.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/coreperf-io/coreperf/client/errs"
	"github.com/coreperf-io/coreperf/client/logger"
)

// DefaultTimeout bounds the JSON API calls. Uploads and downloads are not
// bounded.
const DefaultTimeout = 30 * time.Second

const signedURLsPath = "/createsignedurls"

// Status codes reported by the status endpoint.
const (
	StatusPending     = 100
	StatusReady       = 200
	StatusNotFound    = 404
	StatusServerError = 500
)

// Config contains the settings of a Client.
type Config struct {
	Endpoint  string
	APIKey    string
	Channel   string
	Timeout   time.Duration
	UserAgent string
}

// SignedURLRequest describes the experiment a set of signed URLs is requested
// for.
type SignedURLRequest struct {
	ExperimentID string
	Workload     string
	Core         string
}

// SignedURLs is the response of the signed URL endpoint.
type SignedURLs struct {
	PackageURL string `json:"exppackageurl"`
	PublicKey  string `json:"publicKey"`
	StatusURL  string `json:"statusget"`
}

// ResultLocation points at a finished experiment's result bundle.
type ResultLocation struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Status is the response of the status endpoint.
type Status struct {
	Code     int `json:"code"`
	Metadata struct {
		Result ResultLocation `json:"result"`
	} `json:"metadata"`
}

// Client performs the HTTP calls of one submission.
type Client struct {
	config   Config
	api      *http.Client
	transfer *http.Client
	stats    *Stats
	logger   logger.Logger
}

// New creates a Client. The endpoint must be set.
func New(config Config, log logger.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, errs.New(errs.Configuration, "no service endpoint configured")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = "coreperf"
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")
	return &Client{
		config:   config,
		api:      &http.Client{Timeout: config.Timeout},
		transfer: &http.Client{},
		stats:    NewStats(),
		logger:   log,
	}, nil
}

// Stats returns the request statistics collected so far.
func (c *Client) Stats() *Stats {
	return c.stats
}

// CreateSignedURLs asks the service for upload and status URLs and the public
// key the package must be encrypted to.
func (c *Client) CreateSignedURLs(ctx context.Context, r SignedURLRequest) (*SignedURLs, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint+signedURLsPath, http.NoBody)
	if err != nil {
		return nil, errs.Wrap(errs.Network, err, "failed to create signed URL request")
	}
	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("channel", c.config.Channel)
	req.Header.Set("exp-uuid", r.ExperimentID)
	req.Header.Set("workload", r.Workload)
	req.Header.Set("core", r.Core)
	req.Header.Set("action", "experiment")

	urls := new(SignedURLs)
	if err := c.doJSON(req, urls); err != nil {
		return nil, errs.Wrap(errs.Network, err, "failed to create signed URLs")
	}
	if urls.PackageURL == "" || urls.PublicKey == "" || urls.StatusURL == "" {
		return nil, errs.New(errs.Network, "malformed signed URL response: missing exppackageurl, publicKey or statusget")
	}
	return urls, nil
}

// Upload PUTs the file at path to url in a single attempt.
func (c *Client) Upload(ctx context.Context, url, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrapf(errs.Network, err, "failed to open %s for upload", path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return errs.Wrapf(errs.Network, err, "failed to stat %s", path)
	}

	var body io.Reader = f
	if info.Size() == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return errs.Wrap(errs.Network, err, "failed to create upload request")
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	_, err = c.do(c.transfer, req, info.Size(), func(r io.Reader) error {
		_, err := io.Copy(io.Discard, r)
		return err
	})
	if err != nil {
		return errs.Wrap(errs.Network, err, "failed to upload package")
	}
	return nil
}

// Status fetches the experiment status from url.
func (c *Client) Status(ctx context.Context, url string) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Network, err, "failed to create status request")
	}
	status := new(Status)
	if err := c.doJSON(req, status); err != nil {
		return nil, errs.Wrap(errs.Network, err, "failed to get experiment status")
	}
	return status, nil
}

// Download streams the body of url into dest, replacing dest atomically once
// the whole body has been received. It returns the number of bytes written.
func (c *Client) Download(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errs.Wrap(errs.Network, err, "failed to create download request")
	}
	n, err := c.do(c.transfer, req, 0, func(r io.Reader) error {
		return atomic.WriteFile(dest, r)
	})
	if err != nil {
		return n, errs.Wrap(errs.Network, err, "failed to download results")
	}
	return n, nil
}

func (c *Client) doJSON(req *http.Request, v interface{}) error {
	req.Header.Set("Accept", "application/json")
	_, err := c.do(c.api, req, 0, func(r io.Reader) error {
		body, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("malformed JSON response: %v", err)
		}
		return nil
	})
	return err
}

// do sends req, fails on transport errors and non-2xx responses, and hands
// the response body to consume. The request is recorded once the body is
// consumed, with the number of body bytes actually read, which is returned.
func (c *Client) do(client *http.Client, req *http.Request, sent int64, consume func(io.Reader) error) (int64, error) {
	req.Header.Set("User-Agent", c.config.UserAgent)
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.stats.record(time.Since(start), 0, 0, true)
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		c.stats.record(time.Since(start), sent, 0, true)
		return 0, err
	}

	body := &countingReader{r: resp.Body}
	err = consume(body)
	c.stats.record(time.Since(start), sent, body.n, err != nil)
	if err != nil {
		return body.n, err
	}
	c.logger.Debugf("%s %s: %s (%d bytes)", req.Method, redact(req.URL.String()), resp.Status, body.n)
	return body.n, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("unexpected HTTP status %s", resp.Status)
	}
	return fmt.Errorf("unexpected HTTP status %s: %s", resp.Status, msg)
}

// redact drops the query string, which holds signatures for signed URLs.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i] + "?..."
	}
	return url
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
