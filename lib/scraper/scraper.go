package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"scrapeflow/lib/engine"
	"scrapeflow/lib/request"
	"slices"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("scrapeflow/lib/scraper")

type Mode int

const (
	// Single dispatches exactly one request.
	Single Mode = iota
	// Sequential dispatches the requests one after another, the first
	// failure stops the rest.
	Sequential
	// Concurrent dispatches all requests at once and waits for all of them,
	// the first failure cancels the others.
	Concurrent
)

func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case Sequential:
		return "sequential"
	case Concurrent:
		return "concurrent"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Callback produces the result of Scrape from the scraper, the default
// returns the scraper itself.
type Callback func(s *Scraper) (any, error)

type Option func(s *Scraper)

// WithChain sets the transforms applied to every request before dispatch,
// in order.
func WithChain(chain ...Transform) Option {
	return func(s *Scraper) {
		s.chain = chain
	}
}

func WithCallback(cb Callback) Option {
	return func(s *Scraper) {
		s.callback = cb
	}
}

// WithPreParse parses every new response as kind.
func WithPreParse(kind Kind) Option {
	return func(s *Scraper) {
		s.preParse = kind
	}
}

// WithPostHooks runs hooks in order over the (pre-parsed) result of every
// scrape, their combined output is appended to the history.
func WithPostHooks(hooks ...func(any) any) Option {
	return func(s *Scraper) {
		s.postHooks = hooks
	}
}

func WithMode(mode Mode) Option {
	return func(s *Scraper) {
		s.mode = mode
	}
}

// WithStatusCheck fails a scrape when any response is not 2xx.
func WithStatusCheck() Option {
	return func(s *Scraper) {
		s.statusCheck = true
	}
}

// Scraper is one pipeline: it builds requests, dispatches them through its
// engine and records every intermediate result in its history.
//
// The history of a scraper only grows, repeated scrapes are not isolated
// from each other.
type Scraper struct {
	builder     Builder
	chain       []Transform
	callback    Callback
	preParse    Kind
	postHooks   []func(any) any
	mode        Mode
	statusCheck bool
	engine      *engine.Engine

	mutex   sync.Mutex
	history []any
}

// New creates a detached scraper, it has to be registered on a bound
// module (or bound with Bind) before it can scrape.
func New(builder Builder, opts ...Option) *Scraper {
	s := &Scraper{builder: builder}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind returns a copy of the scraper using e, with an empty history.
func (s *Scraper) Bind(e *engine.Engine) *Scraper {
	return &Scraper{
		builder:     s.builder,
		chain:       slices.Clone(s.chain),
		callback:    s.callback,
		preParse:    s.preParse,
		postHooks:   slices.Clone(s.postHooks),
		mode:        s.mode,
		statusCheck: s.statusCheck,
		engine:      e,
	}
}

func (s *Scraper) Engine() *engine.Engine {
	return s.engine
}

func (s *Scraper) Mode() Mode {
	return s.mode
}

// Get returns the latest history entry, nil when the history is empty.
func (s *Scraper) Get() any {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.history) == 0 {
		return nil
	}
	return s.history[len(s.history)-1]
}

// History returns a copy of every entry, oldest first.
func (s *Scraper) History() []any {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return slices.Clone(s.history)
}

func (s *Scraper) push(v any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.history = append(s.history, v)
}

// Apply appends f(latest) to the history, it does nothing when there is no
// latest entry.
func (s *Scraper) Apply(f func(any) any) *Scraper {
	latest := s.Get()
	if latest == nil {
		return s
	}
	s.push(f(latest))
	return s
}

// ApplyWithEngine is Apply with the scraper's engine passed along.
func (s *Scraper) ApplyWithEngine(f func(any, *engine.Engine) any) *Scraper {
	return s.Apply(func(latest any) any {
		return f(latest, s.engine)
	})
}

// runChain applies the transforms left to right. A nil transform makes the
// chain invalid, then p is returned untouched.
func (s *Scraper) runChain(ctx context.Context, p request.Params) request.Params {
	for i, t := range s.chain {
		if t == nil {
			slog.WarnContext(ctx, "invalid pre-build chain, nil transform", "index", i, "url", p.URL)
			return p
		}
	}
	for _, t := range s.chain {
		p = t(p, s.engine)
	}
	return p
}

// Scrape builds, transforms and dispatches the requests for args, appends
// the response (or the ordered list of responses) to the history, runs the
// configured pre-parse and post hooks then returns the callback's result.
func (s *Scraper) Scrape(ctx context.Context, args ...any) (any, error) {
	ctx, span := tracer.Start(ctx, "scraper:Scrape")
	defer span.End()

	if s.engine == nil {
		return nil, ErrDetached
	}

	reqs, err := s.builder(ctx, s.engine, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build requests")
		return nil, fmt.Errorf("build requests: %w", err)
	}
	switch {
	case len(reqs) == 0:
		return nil, ErrNoRequests
	case len(reqs) > 1 && s.mode == Single:
		return nil, fmt.Errorf("%w: got %d", ErrNotSingle, len(reqs))
	}

	for i, p := range reqs {
		reqs[i] = s.runChain(ctx, p)
	}
	span.SetAttributes(
		attribute.Int("requests", len(reqs)),
		attribute.String("mode", s.mode.String()),
	)

	var result any
	var responses []*resty.Response
	if len(reqs) == 1 {
		res, err := s.engine.Dispatch(ctx, reqs[0])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to dispatch")
			return nil, err
		}
		result = res
		responses = []*resty.Response{res}
	} else {
		responses, err = s.dispatchMany(ctx, reqs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to dispatch")
			return nil, err
		}
		result = responses
	}

	if s.statusCheck {
		for _, res := range responses {
			if !res.IsSuccess() {
				err := &StatusError{Status: res.StatusCode(), URL: res.Request.URL}
				span.RecordError(err)
				span.SetStatus(codes.Error, "unexpected status")
				return nil, err
			}
		}
	}

	s.push(result)

	if s.preParse != KindNone {
		err := s.preParseLatest(s.preParse)
		if errors.Is(err, errUnsupportedKind) {
			slog.WarnContext(ctx, "pre-parse skipped", "kind", string(s.preParse), "err", err)
		} else if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to pre-parse")
			return nil, err
		}
	}
	if len(s.postHooks) > 0 {
		s.Apply(func(latest any) any {
			for _, hook := range s.postHooks {
				latest = hook(latest)
			}
			return latest
		})
	}

	if s.callback == nil {
		return s, nil
	}
	return s.callback(s)
}

func (s *Scraper) dispatchMany(ctx context.Context, reqs Requests) ([]*resty.Response, error) {
	ctx, span := tracer.Start(ctx, "scraper:dispatch")
	defer span.End()

	out := make([]*resty.Response, len(reqs))

	if s.mode != Concurrent {
		for i, p := range reqs {
			res, err := s.engine.Dispatch(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("request %d: %w", i, err)
			}
			out[i] = res
		}
		return out, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for i, p := range reqs {
		group.Go(func() error {
			res, err := s.engine.Dispatch(groupCtx, p)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		return nil, err
	}
	return out, nil
}
