package har

import (
	"context"
	"net/http"
	"net/url"
	"scrapeflow/lib/request"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapeflow/lib/har")

// BuildRequestParams reconstructs replayable parameters from a recorded
// entry. Pseudo headers and browser-computed headers are dropped, the rest
// are kept verbatim with the last duplicate winning.
func BuildRequestParams(e Entry) request.Params {
	headers := map[string]string{}
	for _, header := range e.Request.Headers.WithoutBrowser() {
		headers[header.Name] = header.Value
	}

	params := request.Params{
		Method:  e.Request.Method,
		URL:     e.Request.URL,
		Headers: headers,
	}
	if e.Request.PostData != nil && e.Request.PostData.Text != "" {
		params.Body = []byte(e.Request.PostData.Text)
	}
	return params
}

// Dispatcher sends request params through some configured session.
type Dispatcher interface {
	Dispatch(ctx context.Context, params request.Params) (*resty.Response, error)
}

// Mimic replays an entry. A nil dispatcher sends the request through a new
// client that shares nothing with any engine.
func Mimic(ctx context.Context, d Dispatcher, e Entry) (*resty.Response, error) {
	ctx, span := tracer.Start(ctx, "har:Mimic")
	defer span.End()

	params := BuildRequestParams(e)
	span.SetAttributes(
		attribute.String("method", params.Method),
		attribute.String("url", params.URL),
	)

	var res *resty.Response
	var err error
	if d == nil {
		res, err = request.Send(ctx, resty.New(), params)
	} else {
		res, err = d.Dispatch(ctx, params)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to replay entry")
		return nil, err
	}
	return res, nil
}

// Cookies returns the request cookies of an entry keyed by name, they are
// taken from the structured cookie list and fall back to the cookie header.
func Cookies(e Entry) map[string]string {
	out := map[string]string{}
	for _, c := range e.Request.Cookies {
		out[c.Name] = c.Value
	}
	if len(out) > 0 {
		return out
	}
	for _, raw := range e.Request.Headers.Values("cookie") {
		req := &http.Request{Header: http.Header{"Cookie": {raw}}}
		for _, c := range req.Cookies() {
			out[c.Name] = c.Value
		}
	}
	return out
}

// Query returns the recorded query string as url values.
func Query(e Entry) url.Values {
	out := url.Values{}
	for _, nv := range e.Request.QueryString {
		out.Add(nv.Name, nv.Value)
	}
	return out
}
