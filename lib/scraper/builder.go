package scraper

import (
	"context"
	"iter"
	"scrapeflow/lib/engine"
	"scrapeflow/lib/request"
)

// Requests is the materialized output of a builder, one element dispatches
// as a single request.
type Requests []request.Params

// Builder turns the arguments of a scrape into the requests to dispatch.
type Builder func(ctx context.Context, e *engine.Engine, args ...any) (Requests, error)

// Static always builds the same requests, each scrape gets its own copies.
func Static(params ...request.Params) Builder {
	return func(context.Context, *engine.Engine, ...any) (Requests, error) {
		out := make(Requests, len(params))
		for i, p := range params {
			out[i] = p.Clone()
		}
		return out, nil
	}
}

// Computed builds exactly one request from the scrape arguments.
func Computed(fn func(ctx context.Context, e *engine.Engine, args ...any) (request.Params, error)) Builder {
	return func(ctx context.Context, e *engine.Engine, args ...any) (Requests, error) {
		p, err := fn(ctx, e, args...)
		if err != nil {
			return nil, err
		}
		return Requests{p}, nil
	}
}

// Generated builds requests from a lazily produced sequence, the sequence
// is drained before anything is dispatched.
func Generated(fn func(ctx context.Context, e *engine.Engine, args ...any) iter.Seq[request.Params]) Builder {
	return func(ctx context.Context, e *engine.Engine, args ...any) (Requests, error) {
		return Collect(fn(ctx, e, args...)), nil
	}
}

func Collect(seq iter.Seq[request.Params]) Requests {
	out := Requests{}
	for p := range seq {
		out = append(out, p)
	}
	return out
}

// Transform adjusts request params before they are dispatched.
type Transform func(p request.Params, e *engine.Engine) request.Params
