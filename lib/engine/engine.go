package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"scrapeflow/lib/request"
	"scrapeflow/lib/restyutil"
	"scrapeflow/lib/telemetry"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("scrapeflow/lib/engine")
var meter = otel.Meter("scrapeflow/lib/engine")
var requestCounter, _ = meter.Int64Counter("scrapeflow.engine.requests")
var requestErrorCounter, _ = meter.Int64Counter("scrapeflow.engine.request_errors")

const defaultTimeout = time.Second * 30

// Logs toggles the response log hooks.
type Logs struct {
	// status and url of every response
	Response bool
	// headers of every response
	ResponseHeaders bool
	// headers that were actually sent with every request
	RequestHeaders bool
}

type Options struct {
	BaseURL string
	// default headers sent with every request
	Headers map[string]string
	// raw cookie header value sent with every request
	Cookie string
	// named header presets selected through request.Params.HeaderSet
	HeaderSets map[string]map[string]string
	// a random browser user-agent is used when empty
	UserAgent        string
	Timeout          time.Duration
	CloudflareBypass bool
	Logs             Logs
	// receives every exchange, it is flushed on Close when it has a
	// `Flush() error` method (like *har.Recorder).
	Record restyutil.InstrumentOutput
}

// Engine is the shared client context of a scraping session: one http
// session with its cookies, default headers and header presets.
type Engine struct {
	id         string
	client     *resty.Client
	record     restyutil.InstrumentOutput
	headerSets map[string]map[string]string

	// held for reading by every in-flight dispatch, AddGlobalHeaders and
	// Close take it for writing.
	mutex  sync.RWMutex
	closed bool
}

func New(opts Options) (*Engine, error) {
	id, err := random.String(8)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client.SetTimeout(timeout)

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = RandomUserAgent()
	}
	client.SetHeader("user-agent", userAgent)
	client.SetHeaders(opts.Headers)
	if opts.Cookie != "" {
		client.SetHeader("cookie", opts.Cookie)
	}

	telemetry.InstrumentResty(client, "scrapeflow/lib/engine/http")
	restyutil.InstrumentClient(client, opts.Record)
	client.OnAfterResponse(logHook(id, opts.Logs))

	headerSets := make(map[string]map[string]string, len(opts.HeaderSets))
	for name, set := range opts.HeaderSets {
		headerSets[name] = maps.Clone(set)
	}

	slog.Debug("engine created", "engine", id, "user_agent", userAgent, "timeout", timeout)

	return &Engine{
		id:         id,
		client:     client,
		record:     opts.Record,
		headerSets: headerSets,
	}, nil
}

func logHook(id string, logs Logs) resty.ResponseMiddleware {
	return func(_ *resty.Client, res *resty.Response) error {
		ctx := res.Request.Context()
		if logs.Response {
			slog.InfoContext(
				ctx, "response",
				"engine", id,
				"status", res.StatusCode(),
				"url", res.Request.URL,
			)
		}
		if logs.ResponseHeaders {
			slog.InfoContext(ctx, "response headers", "engine", id, "url", res.Request.URL, "headers", res.Header())
		}
		if logs.RequestHeaders && res.Request.RawRequest != nil {
			slog.InfoContext(ctx, "request headers", "engine", id, "url", res.Request.URL, "headers", res.Request.RawRequest.Header)
		}
		return nil
	}
}

func (e *Engine) ID() string {
	return e.id
}

// Client exposes the underlying session, requests made on it directly
// bypass header sets and the closed check.
func (e *Engine) Client() *resty.Client {
	return e.client
}

// Headers returns a copy of the default headers.
func (e *Engine) Headers() map[string]string {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	out := make(map[string]string, len(e.client.Header))
	for key := range e.client.Header {
		out[http.CanonicalHeaderKey(key)] = e.client.Header.Get(key)
	}
	return out
}

func (e *Engine) HeaderSet(name string) (map[string]string, bool) {
	set, ok := e.headerSets[name]
	return maps.Clone(set), ok
}

// AddGlobalHeaders merges headers into the defaults of every later request,
// existing keys are overwritten and nothing is ever removed.
func (e *Engine) AddGlobalHeaders(headers map[string]string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.client.SetHeaders(headers)
}

// SetCookies seeds the cookie jar for rawURL.
func (e *Engine) SetCookies(rawURL string, cookies map[string]string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	jarCookies := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		jarCookies = append(jarCookies, &http.Cookie{Name: name, Value: value})
	}
	e.client.GetClient().Jar.SetCookies(u, jarCookies)
	return nil
}

// Cookies returns the cookies the jar would send to rawURL.
func (e *Engine) Cookies(rawURL string) (map[string]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, c := range e.client.GetClient().Jar.Cookies(u) {
		out[c.Name] = c.Value
	}
	return out, nil
}

func (e *Engine) applyHeaderSet(ctx context.Context, p request.Params) request.Params {
	if p.HeaderSet == "" {
		return p
	}
	set, ok := e.headerSets[p.HeaderSet]
	if !ok {
		slog.WarnContext(ctx, "unknown header set, keeping request headers", "engine", e.id, "header_set", p.HeaderSet)
		return p
	}
	p.Headers = maps.Clone(set)
	return p
}

// Dispatch sends one request through the session. ctx cancels the request,
// p.Timeout (or the engine timeout) bounds it.
func (e *Engine) Dispatch(ctx context.Context, p request.Params) (*resty.Response, error) {
	ctx, span := tracer.Start(ctx, "engine:Dispatch")
	defer span.End()

	e.mutex.RLock()
	defer e.mutex.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}

	p = e.applyHeaderSet(ctx, p)
	method := p.Method
	if method == "" {
		method = resty.MethodGet
	}
	span.SetAttributes(
		attribute.String("engine", e.id),
		attribute.String("method", method),
		attribute.String("url", p.URL),
	)
	attrs := metric.WithAttributes(attribute.String("method", method))
	requestCounter.Add(ctx, 1, attrs)

	res, err := request.Send(ctx, e.client, p)
	if err != nil {
		requestErrorCounter.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, &TransportError{Method: method, URL: p.URL, Err: err}
	}
	return res, nil
}

type flusher interface {
	Flush() error
}

// Close releases idle connections and flushes the recording output. It
// waits for in-flight dispatches, calling it again returns ErrClosed.
func (e *Engine) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.closed = true
	e.client.GetClient().CloseIdleConnections()

	if f, ok := e.record.(flusher); ok {
		err := f.Flush()
		if err != nil {
			return fmt.Errorf("flush recording: %w", err)
		}
	}
	slog.Debug("engine closed", "engine", e.id)
	return nil
}
