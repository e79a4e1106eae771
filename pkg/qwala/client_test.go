package qwala_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qwamber/qwala-go/internal/handler"
	"github.com/qwamber/qwala-go/internal/repository"
	"github.com/qwamber/qwala-go/internal/service"
	"github.com/qwamber/qwala-go/pkg/qwala"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

// newStub поднимает заглушку API в памяти
func newStub(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	linkService := service.NewLinkService(repository.NewLinkRepository(), repository.NewViewRepository(), nil)
	ts := httptest.NewServer(handler.NewRouter(linkService, nil, nil))
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T, baseURL string, opts ...qwala.Option) *qwala.Client {
	t.Helper()
	client, err := qwala.New(append([]qwala.Option{qwala.WithBaseURL(baseURL)}, opts...)...)
	require.NoError(t, err)
	return client
}

type recordedRequest struct {
	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

// capture запоминает последний запрос и отвечает заданным телом
type capture struct {
	mu  sync.Mutex
	req recordedRequest
}

func (c *capture) last() recordedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.req
}

func (c *capture) server(t *testing.T, status int, response string) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.req = recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query().Get("shortLinkID"),
			header: r.Header.Clone(),
			body:   body,
		}
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestShorten_RequestWithoutOptions(t *testing.T) {
	var c capture
	ts := c.server(t, http.StatusOK, `{"shortLinkID":"example"}`)
	client := newClient(t, ts.URL)

	id, err := client.Shorten(context.Background(), "https://example.com/long", nil)
	require.NoError(t, err)
	assert.Equal(t, "example", id)

	assert.Equal(t, http.MethodPost, c.last().method)
	assert.Equal(t, "/api/shorten", c.last().path)
	assert.Equal(t, "application/json", c.last().header.Get("Content-Type"))
	assert.Equal(t, "application/json", c.last().header.Get("Accept"))

	// Незаданные опции не превращаются в false или 0
	assert.JSONEq(t, `{"longLink":"https://example.com/long"}`, string(c.last().body))
}

func TestShorten_RequestWithOptions(t *testing.T) {
	var c capture
	ts := c.server(t, http.StatusOK, `{"shortLinkID":"custom"}`)
	client := newClient(t, ts.URL)

	opts := &qwala.ShortenOptions{
		IsWords:           qwala.Bool(false),
		HideStatistics:    qwala.Bool(true),
		ExpiryDate:        qwala.Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		CustomShortLinkID: "custom",
	}

	id, err := client.Shorten(context.Background(), "https://example.com/long", opts)
	require.NoError(t, err)
	assert.Equal(t, "custom", id)

	assert.JSONEq(t, `{
		"longLink": "https://example.com/long",
		"isWords": false,
		"hideStatistics": true,
		"expiryDate": 1704067200,
		"customShortLinkID": "custom"
	}`, string(c.last().body))
}

func TestShorten_ExpiryDateOnly(t *testing.T) {
	var c capture
	ts := c.server(t, http.StatusOK, `{"shortLinkID":"x"}`)
	client := newClient(t, ts.URL)

	expiry := time.Date(2024, 1, 1, 3, 0, 0, 0, time.FixedZone("MSK", 3*60*60))
	_, err := client.Shorten(context.Background(), "https://example.com", &qwala.ShortenOptions{ExpiryDate: &expiry})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(c.last().body, &body))
	assert.Equal(t, float64(1704067200), body["expiryDate"])
	assert.NotContains(t, body, "isWords")
	assert.NotContains(t, body, "hideStatistics")
	assert.NotContains(t, body, "customShortLinkID")
}

func TestLengthen_Request(t *testing.T) {
	var c capture
	ts := c.server(t, http.StatusOK, `{"longLink":"https://example.com/original"}`)
	client := newClient(t, ts.URL)

	longLink, err := client.Lengthen(context.Background(), "a b&c")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/original", longLink)

	assert.Equal(t, http.MethodGet, c.last().method)
	assert.Equal(t, "/api/lengthen", c.last().path)
	assert.Equal(t, "a b&c", c.last().query)
	assert.Empty(t, c.last().body)
}

func TestStatistics_Request(t *testing.T) {
	var c capture
	ts := c.server(t, http.StatusOK, `{"views":[
		{"ipAddress":"10.0.0.2","viewed":"2024-01-02T00:00:00.000Z"},
		{"ipAddress":"10.0.0.1","viewed":"2024-01-01T00:00:00.000Z"}
	]}`)
	client := newClient(t, ts.URL)

	views, err := client.Statistics(context.Background(), "example")
	require.NoError(t, err)

	assert.Equal(t, "/api/statistics", c.last().path)
	assert.Equal(t, "example", c.last().query)

	// Порядок сохраняется как у сервера
	require.Len(t, views, 2)
	assert.Equal(t, "10.0.0.2", views[0].IPAddress)
	assert.True(t, views[0].Viewed.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "10.0.0.1", views[1].IPAddress)
}

func TestStatistics_NoViews(t *testing.T) {
	for _, body := range []string{`{"views":[]}`, `{"views":null}`} {
		t.Run(body, func(t *testing.T) {
			var c capture
			ts := c.server(t, http.StatusOK, body)
			client := newClient(t, ts.URL)

			views, err := client.Statistics(context.Background(), "example")
			require.NoError(t, err)
			assert.NotNil(t, views)
			assert.Empty(t, views)
		})
	}
}

func TestServiceError_NestedPayload(t *testing.T) {
	var c capture
	ts := c.server(t, http.StatusNotFound, `{"error":{"code":"NOT_FOUND"}}`)
	client := newClient(t, ts.URL)

	_, err := client.Lengthen(context.Background(), "missing")
	require.Error(t, err)

	var se *qwala.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "NOT_FOUND", se.Code)
	assert.Equal(t, `{"code":"NOT_FOUND"}`, string(se.Payload))
	assert.True(t, qwala.IsNotFound(err))
}

func TestMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		call func(client *qwala.Client) error
		body string
	}{
		{
			name: "shorten без shortLinkID",
			body: `{}`,
			call: func(client *qwala.Client) error {
				_, err := client.Shorten(context.Background(), "https://example.com", nil)
				return err
			},
		},
		{
			name: "lengthen не JSON",
			body: `<html>`,
			call: func(client *qwala.Client) error {
				_, err := client.Lengthen(context.Background(), "x")
				return err
			},
		},
		{
			name: "statistics без views",
			body: `{"total":3}`,
			call: func(client *qwala.Client) error {
				_, err := client.Statistics(context.Background(), "x")
				return err
			},
		},
		{
			name: "statistics views не массив",
			body: `{"views":"many"}`,
			call: func(client *qwala.Client) error {
				_, err := client.Statistics(context.Background(), "x")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c capture
			ts := c.server(t, http.StatusOK, tt.body)

			err := tt.call(newClient(t, ts.URL))

			var te *qwala.TransportError
			require.ErrorAs(t, err, &te)
			assert.ErrorIs(t, err, qwala.ErrMalformedResponse)
		})
	}
}

func TestTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	baseURL := ts.URL
	ts.Close()

	client := newClient(t, baseURL)

	_, err := client.Lengthen(context.Background(), "example")

	var te *qwala.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "lengthen", te.Op)
	assert.False(t, qwala.IsNotFound(err))
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	client := newClient(t, ts.URL, qwala.WithTimeout(50*time.Millisecond))

	_, err := client.Statistics(context.Background(), "slow")

	var te *qwala.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestValidation(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	client := newClient(t, ts.URL)
	ctx := context.Background()

	_, err := client.Shorten(ctx, "", nil)
	var ve *qwala.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "longLink", ve.Field)

	_, err = client.Lengthen(ctx, "")
	assert.ErrorIs(t, err, qwala.ErrEmptyArgument)

	_, err = client.Statistics(ctx, "")
	assert.ErrorIs(t, err, qwala.ErrEmptyArgument)

	assert.Equal(t, int32(0), calls.Load())
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, baseURL := range []string{"qwa.li", "ftp://qwa.li", "://bad"} {
		_, err := qwala.New(qwala.WithBaseURL(baseURL))
		assert.Error(t, err, baseURL)
	}

	client, err := qwala.New(qwala.WithBaseURL("http://qwa.li/"))
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestRetry(t *testing.T) {
	t.Run("повтор после 503", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"longLink":"https://example.com"}`))
		}))
		defer ts.Close()

		client := newClient(t, ts.URL, qwala.WithRetry(3, time.Millisecond))

		longLink, err := client.Lengthen(context.Background(), "example")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", longLink)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("4xx не повторяется", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"NOT_FOUND"}}`))
		}))
		defer ts.Close()

		client := newClient(t, ts.URL, qwala.WithRetry(3, time.Millisecond))

		_, err := client.Statistics(context.Background(), "missing")
		assert.True(t, qwala.IsNotFound(err))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("попытки кончились", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		client := newClient(t, ts.URL, qwala.WithRetry(2, time.Millisecond))

		_, err := client.Lengthen(context.Background(), "example")
		var se *qwala.ServiceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("shorten не повторяется", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		client := newClient(t, ts.URL, qwala.WithRetry(3, time.Millisecond))

		_, err := client.Shorten(context.Background(), "https://example.com", nil)
		assert.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestRateLimiter(t *testing.T) {
	var c capture
	ts := c.server(t, http.StatusOK, `{"longLink":"https://example.com"}`)

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	client := newClient(t, ts.URL, qwala.WithRateLimiter(limiter))

	_, err := client.Lengthen(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = client.Lengthen(ctx, "second")
	var te *qwala.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "first", c.last().query)
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	var c capture
	ts := c.server(t, http.StatusNotFound, `{"error":{"code":"NOT_FOUND"}}`)
	client := newClient(t, ts.URL, qwala.WithLogger(zap.New(core)))

	_, err := client.Lengthen(context.Background(), "missing")
	require.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "lengthen", entries[0].ContextMap()["op"])
}

// memoryCache кэш в памяти для тестов
type memoryCache struct {
	mu    sync.Mutex
	links map[string]string
	ttls  map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{links: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(ctx context.Context, shortLinkID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	longLink, ok := m.links[shortLinkID]
	if !ok {
		return "", errors.New("miss")
	}
	return longLink, nil
}

func (m *memoryCache) Set(ctx context.Context, shortLinkID, longLink string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[shortLinkID] = longLink
	m.ttls[shortLinkID] = ttl
	return nil
}

func TestLinkCache(t *testing.T) {
	ts := newStub(t)
	cache := newMemoryCache()
	client := newClient(t, ts.URL, qwala.WithLinkCache(cache, time.Hour))
	ctx := context.Background()

	expiry := time.Now().Add(10 * time.Minute)
	id, err := client.Shorten(ctx, "https://example.com/cached", &qwala.ShortenOptions{ExpiryDate: &expiry})
	require.NoError(t, err)

	// TTL кэша не дольше жизни ссылки
	assert.Equal(t, "https://example.com/cached", cache.links[id])
	assert.LessOrEqual(t, cache.ttls[id], 10*time.Minute)

	longLink, err := client.Lengthen(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cached", longLink)

	// Ответ из кэша не записывает просмотр на сервере
	views, err := client.Statistics(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestRoundTrip(t *testing.T) {
	ts := newStub(t)
	client := newClient(t, ts.URL)
	ctx := context.Background()

	for _, longLink := range []string{
		"https://example.com",
		"https://example.com/path?query=1&other=%20",
		"http://пример.рф/путь",
	} {
		id, err := client.Shorten(ctx, longLink, nil)
		require.NoError(t, err)

		got, err := client.Lengthen(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, longLink, got)

		views, err := client.Statistics(ctx, id)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "127.0.0.1", views[0].IPAddress)
	}
}

func TestStub_ServiceErrors(t *testing.T) {
	ts := newStub(t)
	client := newClient(t, ts.URL)
	ctx := context.Background()

	_, err := client.Shorten(ctx, "https://example.com", &qwala.ShortenOptions{CustomShortLinkID: "taken"})
	require.NoError(t, err)

	_, err = client.Shorten(ctx, "https://example.com/other", &qwala.ShortenOptions{CustomShortLinkID: "taken"})
	var se *qwala.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.StatusCode)
	assert.Equal(t, handler.CodeShortLinkIDTaken, se.Code)

	_, err = client.Lengthen(ctx, "missing")
	assert.True(t, qwala.IsNotFound(err))

	_, err = client.Shorten(ctx, "https://example.com/h", &qwala.ShortenOptions{
		CustomShortLinkID: "hidden",
		HideStatistics:    qwala.Bool(true),
	})
	require.NoError(t, err)
	_, err = client.Statistics(ctx, "hidden")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, handler.CodeStatisticsHidden, se.Code)
}

func TestShorten_Concurrent(t *testing.T) {
	ts := newStub(t)
	client := newClient(t, ts.URL)
	ctx := context.Background()

	const n = 50
	ids := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = client.Shorten(ctx, fmt.Sprintf("https://example.com/%d", i), nil)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]], "duplicate ID %s", ids[i])
		seen[ids[i]] = true

		longLink, err := client.Lengthen(ctx, ids[i])
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("https://example.com/%d", i), longLink)
	}
}

func TestShortenBatch(t *testing.T) {
	ts := newStub(t)
	client := newClient(t, ts.URL)
	ctx := context.Background()

	items := []qwala.BatchItem{
		{LongLink: "https://example.com/1"},
		{LongLink: "https://example.com/2", Options: &qwala.ShortenOptions{CustomShortLinkID: "second"}},
		{LongLink: "https://example.com/3", Options: &qwala.ShortenOptions{IsWords: qwala.Bool(true)}},
	}

	ids, err := client.ShortenBatch(ctx, items, 2)
	require.NoError(t, err)
	require.Len(t, ids, len(items))
	assert.Equal(t, "second", ids[1])

	for i, id := range ids {
		longLink, err := client.Lengthen(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, items[i].LongLink, longLink)
	}

	// Ошибка одного элемента возвращается целиком
	_, err = client.ShortenBatch(ctx, []qwala.BatchItem{
		{LongLink: "https://example.com/ok"},
		{LongLink: ""},
	}, 0)
	var ve *qwala.ValidationError
	assert.ErrorAs(t, err, &ve)
}
