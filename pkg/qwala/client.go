// Package qwala клиент API сервиса коротких ссылок qwa.li.
//
// Клиент не хранит изменяемого состояния: один экземпляр, созданный через
// New, можно использовать из любого количества горутин.
package qwala

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Константы клиента
const (
	DefaultBaseURL  = "http://qwa.li"
	DefaultTimeout  = 10 * time.Second
	DefaultCacheTTL = 24 * time.Hour

	shortenPath    = "/api/shorten"
	lengthenPath   = "/api/lengthen"
	statisticsPath = "/api/statistics"

	maxResponseSize = 4 << 20
)

// API набор операций сервиса
type API interface {
	Shorten(ctx context.Context, longLink string, opts *ShortenOptions) (string, error)
	Lengthen(ctx context.Context, shortLinkID string) (string, error)
	Statistics(ctx context.Context, shortLinkID string) ([]View, error)
}

// LinkCache кэш соответствий shortLinkID -> longLink.
// Get возвращает ошибку, если записи нет.
type LinkCache interface {
	Get(ctx context.Context, shortLinkID string) (string, error)
	Set(ctx context.Context, shortLinkID, longLink string, ttl time.Duration) error
}

// Client клиент сервиса qwa.li
type Client struct {
	baseURL       string
	httpClient    *http.Client
	timeout       time.Duration
	logger        *zap.Logger
	limiter       *rate.Limiter
	maxRetries    uint64
	retryInterval time.Duration
	cache         LinkCache
	cacheTTL      time.Duration
}

var _ API = (*Client)(nil)

// Option настройка клиента
type Option func(*Client)

// WithBaseURL адрес API, по умолчанию http://qwa.li
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient свой http.Client, например с настроенным транспортом
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout ограничение на один запрос; 0 отключает ограничение
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLogger логгер для ошибок и отладки. Без него клиент ничего не пишет.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimiter ограничивает частоту исходящих запросов
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithRetry включает повторы с экспоненциальной задержкой для Lengthen и
// Statistics. Shorten не повторяется никогда: повторный вызов может создать
// вторую ссылку.
func WithRetry(maxRetries uint64, initialInterval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryInterval = initialInterval
	}
}

// WithLinkCache подключает кэш для Lengthen. ttl <= 0 означает DefaultCacheTTL.
func WithLinkCache(cache LinkCache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// New создаёт клиент
func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:       DefaultBaseURL,
		timeout:       DefaultTimeout,
		logger:        zap.NewNop(),
		retryInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", c.baseURL)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.cacheTTL <= 0 {
		c.cacheTTL = DefaultCacheTTL
	}

	return c, nil
}

// Shorten создаёт короткую ссылку и возвращает её ID.
// Например, для qwa.la/example вернётся "example".
func (c *Client) Shorten(ctx context.Context, longLink string, opts *ShortenOptions) (string, error) {
	const op = "shorten"

	if longLink == "" {
		return "", c.fail(op, &ValidationError{Field: "longLink", Err: ErrEmptyArgument})
	}

	var resp shortenResponse
	body := newShortenRequest(longLink, opts)
	if err := c.do(ctx, op, http.MethodPost, shortenPath, nil, body, &resp); err != nil {
		return "", c.fail(op, err)
	}

	if resp.ShortLinkID == nil || *resp.ShortLinkID == "" {
		return "", c.fail(op, malformed(op, "shortLinkID"))
	}
	shortLinkID := *resp.ShortLinkID

	c.remember(ctx, shortLinkID, longLink, opts)

	return shortLinkID, nil
}

// Lengthen возвращает исходную длинную ссылку по ID короткой
func (c *Client) Lengthen(ctx context.Context, shortLinkID string) (string, error) {
	const op = "lengthen"

	if shortLinkID == "" {
		return "", c.fail(op, &ValidationError{Field: "shortLinkID", Err: ErrEmptyArgument})
	}

	// Проверка кэша
	if c.cache != nil {
		longLink, err := c.cache.Get(ctx, shortLinkID)
		if err == nil && longLink != "" {
			return longLink, nil
		}
		if err != nil {
			c.logger.Debug("Link cache miss", zap.String("short_link_id", shortLinkID), zap.Error(err))
		}
	}

	var resp lengthenResponse
	query := url.Values{"shortLinkID": {shortLinkID}}
	err := c.retry(ctx, op, func() error {
		return c.do(ctx, op, http.MethodGet, lengthenPath, query, nil, &resp)
	})
	if err != nil {
		return "", c.fail(op, err)
	}

	if resp.LongLink == nil || *resp.LongLink == "" {
		return "", c.fail(op, malformed(op, "longLink"))
	}

	c.remember(ctx, shortLinkID, *resp.LongLink, nil)

	return *resp.LongLink, nil
}

// Statistics возвращает просмотры короткой ссылки в порядке, в котором их
// отдал сервис. Для ссылки без просмотров возвращается пустой срез.
func (c *Client) Statistics(ctx context.Context, shortLinkID string) ([]View, error) {
	const op = "statistics"

	if shortLinkID == "" {
		return nil, c.fail(op, &ValidationError{Field: "shortLinkID", Err: ErrEmptyArgument})
	}

	var resp statisticsResponse
	query := url.Values{"shortLinkID": {shortLinkID}}
	err := c.retry(ctx, op, func() error {
		return c.do(ctx, op, http.MethodGet, statisticsPath, query, nil, &resp)
	})
	if err != nil {
		return nil, c.fail(op, err)
	}

	if len(resp.Views) == 0 {
		return nil, c.fail(op, malformed(op, "views"))
	}

	views := []View{}
	if err := json.Unmarshal(resp.Views, &views); err != nil {
		return nil, c.fail(op, &TransportError{Op: op, Err: fmt.Errorf("%w: views: %v", ErrMalformedResponse, err)})
	}
	if views == nil {
		views = []View{}
	}

	return views, nil
}

// do выполняет один запрос к API и разбирает JSON-ответ в out
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Op: op, Err: err}
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug("Request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newServiceError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	return nil
}

// remember кладёт соответствие в кэш. TTL не превышает срок жизни ссылки.
func (c *Client) remember(ctx context.Context, shortLinkID, longLink string, opts *ShortenOptions) {
	if c.cache == nil {
		return
	}

	ttl := c.cacheTTL
	if opts != nil && opts.ExpiryDate != nil {
		until := time.Until(*opts.ExpiryDate)
		if until <= 0 {
			return
		}
		if until < ttl {
			ttl = until
		}
	}

	if err := c.cache.Set(ctx, shortLinkID, longLink, ttl); err != nil {
		// Ошибка кэша не прерывает вызов
		c.logger.Debug("Failed to cache link", zap.String("short_link_id", shortLinkID), zap.Error(err))
	}
}

func (c *Client) fail(op string, err error) error {
	c.logger.Warn("qwala request failed", zap.String("op", op), zap.Error(err))
	return err
}

func malformed(op, field string) error {
	return &TransportError{Op: op, Err: fmt.Errorf("%w: missing %s", ErrMalformedResponse, field)}
}
