package banksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	accountsPath     = "/accounts"
	transactionsPath = "/transactions"
	defaultTimeout   = 30 * time.Second
)

// ErrUnauthorized is returned when the aggregator rejects the API key.
var ErrUnauthorized = errors.New("aggregator rejected the API key")

// Source supplies a feed for one aggregator account.
type Source interface {
	Fetch(ctx context.Context, externalAccountID string, since time.Time) (*Feed, error)
}

// Client talks to the aggregator's HTTP API. Transient failures (network
// errors, 429, 5xx) are retried.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
}

var _ Source = (*Client)(nil)

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff; zero keeps the
	// library defaults.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       zerolog.Logger
}

// NewClient returns a Client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("sync base URL is not configured")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("sync base URL: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rc.HTTPClient.Timeout = timeout
	rc.Logger = leveledLogger{opts.Logger.With().Str("component", "banksync").Logger()}

	return &Client{http: rc, baseURL: opts.BaseURL, apiKey: opts.APIKey}, nil
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    []T    `json:"data"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Fetch loads the account list and the account's transactions dated on or
// after since.
func (c *Client) Fetch(ctx context.Context, externalAccountID string, since time.Time) (*Feed, error) {
	accounts, err := get[Account](ctx, c, accountsPath, nil)
	if err != nil {
		return nil, err
	}
	q := url.Values{"accountId": {externalAccountID}}
	if !since.IsZero() {
		q.Set("from", since.Format("2006-01-02"))
	}
	txns, err := get[Transaction](ctx, c, transactionsPath, q)
	if err != nil {
		return nil, err
	}
	return &Feed{Accounts: accounts, Transactions: txns}, nil
}

func get[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}

	var env envelope[T]
	decodeErr := json.Unmarshal(body, &env)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("GET %s: %w", path, ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		if decodeErr != nil || env.Error == "" {
			return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, truncate(string(body), 200))
		}
		return nil, fmt.Errorf("GET %s: status %d: %s - %s", path, resp.StatusCode, env.Error, env.Message)
	case decodeErr != nil:
		return nil, fmt.Errorf("decoding %s response: %w", path, decodeErr)
	case !env.Success:
		return nil, fmt.Errorf("GET %s: aggregator returned success=false: %s", path, env.Message)
	}
	return env.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// FileSource serves a feed saved on disk.
type FileSource struct {
	Path string
}

// Fetch loads the file; since is ignored.
func (s FileSource) Fetch(_ context.Context, _ string, _ time.Time) (*Feed, error) {
	return LoadFile(s.Path)
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warn().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debug().Fields(kv).Msg(msg) }
