package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"scrapeflow/lib/har"
	"scrapeflow/lib/request"
	"scrapeflow/lib/telemetry"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type echo struct {
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
	Cookies map[string]string `json:"cookies"`
}

func newEchoServer(t testing.TB) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s-1", Path: "/"})
		}
		out := echo{Path: r.URL.Path, Headers: map[string]string{}, Cookies: map[string]string{}}
		for key := range r.Header {
			out.Headers[http.CanonicalHeaderKey(key)] = r.Header.Get(key)
		}
		for _, c := range r.Cookies() {
			out.Cookies[c.Name] = c.Value
		}
		w.Header().Set("content-type", "application/json")
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dispatchEcho(t testing.TB, e *Engine, p request.Params) echo {
	res, err := e.Dispatch(context.Background(), p)
	require.NoError(t, err)
	var out echo
	require.NoError(t, json.Unmarshal(res.Body(), &out))
	return out
}

func TestDispatchDefaults(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:engine")
	defer cleanup()

	srv := newEchoServer(t)
	e, err := New(Options{
		BaseURL: srv.URL,
		Headers: map[string]string{"x-static": "1"},
		Cookie:  "theme=dark",
	})
	require.NoError(t, err)
	defer e.Close()
	require.NotEmpty(t, e.ID())

	out := dispatchEcho(t, e, request.Params{URL: "/items"})
	require.Equal(t, "/items", out.Path)
	require.Equal(t, "1", out.Headers["X-Static"])
	require.Equal(t, "dark", out.Cookies["theme"])
	require.True(t, slices.Contains(userAgents, out.Headers["User-Agent"]), out.Headers["User-Agent"])

	out = dispatchEcho(t, e, request.Params{
		URL:     "/items",
		Headers: map[string]string{"x-static": "overridden"},
	})
	require.Equal(t, "overridden", out.Headers["X-Static"])
}

func TestUserAgentOption(t *testing.T) {
	srv := newEchoServer(t)
	e, err := New(Options{UserAgent: "scrapeflow-test"})
	require.NoError(t, err)
	defer e.Close()

	out := dispatchEcho(t, e, request.Params{URL: srv.URL})
	require.Equal(t, "scrapeflow-test", out.Headers["User-Agent"])
	require.Equal(t, "scrapeflow-test", e.Headers()["User-Agent"])
}

func TestAddGlobalHeaders(t *testing.T) {
	srv := newEchoServer(t)
	e, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	defer e.Close()

	out := dispatchEcho(t, e, request.Params{URL: "/"})
	require.Empty(t, out.Headers["Authorization"])

	e.AddGlobalHeaders(map[string]string{"authorization": "Bearer t"})
	out = dispatchEcho(t, e, request.Params{URL: "/"})
	require.Equal(t, "Bearer t", out.Headers["Authorization"])

	e.AddGlobalHeaders(map[string]string{"x-extra": "1"})
	out = dispatchEcho(t, e, request.Params{URL: "/"})
	require.Equal(t, "Bearer t", out.Headers["Authorization"])
	require.Equal(t, "1", out.Headers["X-Extra"])
}

func TestAddGlobalHeadersConcurrent(t *testing.T) {
	srv := newEchoServer(t)
	e, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	defer e.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.AddGlobalHeaders(map[string]string{"x-round": "1"})
		}()
		go func() {
			defer wg.Done()
			_, err := e.Dispatch(context.Background(), request.Params{URL: "/"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, "1", e.Headers()["X-Round"])
}

func TestHeaderSets(t *testing.T) {
	srv := newEchoServer(t)
	e, err := New(Options{
		BaseURL: srv.URL,
		HeaderSets: map[string]map[string]string{
			"api": {"x-api-key": "K-1"},
		},
	})
	require.NoError(t, err)
	defer e.Close()

	set, ok := e.HeaderSet("api")
	require.True(t, ok)
	set["x-api-key"] = "mutated"

	out := dispatchEcho(t, e, request.Params{
		URL:       "/",
		Headers:   map[string]string{"x-request": "1"},
		HeaderSet: "api",
	})
	require.Equal(t, "K-1", out.Headers["X-Api-Key"])
	require.Empty(t, out.Headers["X-Request"])

	out = dispatchEcho(t, e, request.Params{
		URL:       "/",
		Headers:   map[string]string{"x-request": "1"},
		HeaderSet: "unknown",
	})
	require.Equal(t, "1", out.Headers["X-Request"])
	require.Empty(t, out.Headers["X-Api-Key"])
}

func TestCookies(t *testing.T) {
	srv := newEchoServer(t)
	e, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	defer e.Close()

	dispatchEcho(t, e, request.Params{URL: "/login"})
	cookies, err := e.Cookies(srv.URL)
	require.NoError(t, err)
	require.Equal(t, "s-1", cookies["session"])

	out := dispatchEcho(t, e, request.Params{URL: "/account"})
	require.Equal(t, "s-1", out.Cookies["session"])

	require.NoError(t, e.SetCookies(srv.URL, map[string]string{"region": "eu"}))
	out = dispatchEcho(t, e, request.Params{URL: "/account"})
	require.Equal(t, "eu", out.Cookies["region"])
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e, err := New(Options{})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Dispatch(context.Background(), request.Params{Method: "POST", URL: url})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "POST", transportErr.Method)
	require.Equal(t, url, transportErr.URL)
}

func TestDispatchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	e, err := New(Options{})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Dispatch(context.Background(), request.Params{URL: srv.URL, Timeout: time.Millisecond * 20})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Dispatch(ctx, request.Params{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}

func TestClose(t *testing.T) {
	srv := newEchoServer(t)
	path := filepath.Join(t.TempDir(), "session.har")
	recorder := har.NewRecorder(path)

	e, err := New(Options{BaseURL: srv.URL, Record: recorder})
	require.NoError(t, err)

	dispatchEcho(t, e, request.Params{URL: "/a"})
	dispatchEcho(t, e, request.Params{URL: "/b"})

	require.NoError(t, e.Close())
	require.ErrorIs(t, e.Close(), ErrClosed)

	_, err = e.Dispatch(context.Background(), request.Params{URL: "/c"})
	require.True(t, errors.Is(err, ErrClosed))

	archive, err := har.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, archive.Log.Entries, 2)
	require.Equal(t, srv.URL+"/b", archive.Log.Entries[1].URL())
}
