package request

import (
	"context"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/go-resty/resty/v2"
)

// Params is everything needed to issue one request. It is produced by
// scraper builders and by traffic replay, and consumed by whatever
// dispatches it.
type Params struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   url.Values
	Body    []byte

	// names a header preset on the dispatching engine, when set and known
	// the preset replaces Headers entirely.
	HeaderSet string
	// zero means the dispatcher's default.
	Timeout time.Duration
}

func (p Params) Clone() Params {
	out := p
	out.Headers = maps.Clone(p.Headers)
	if p.Query != nil {
		out.Query = make(url.Values, len(p.Query))
		for k, v := range p.Query {
			out.Query[k] = slices.Clone(v)
		}
	}
	out.Body = slices.Clone(p.Body)
	return out
}

func (p Params) method() string {
	if p.Method == "" {
		return http.MethodGet
	}
	return p.Method
}

// headers the http stack reads or adds under their canonical name, sending
// them verbatim would put them on the wire twice.
var canonicalOnly = map[string]bool{
	"Accept":            true,
	"Accept-Encoding":   true,
	"Connection":        true,
	"Content-Length":    true,
	"Content-Type":      true,
	"Cookie":            true,
	"Host":              true,
	"Transfer-Encoding": true,
	"User-Agent":        true,
}

// setHeader keeps the case of name as given. defaults are the client's
// headers, a request header shadowing one of them is canonicalized so it
// replaces the default instead of being sent next to it.
func setHeader(req *resty.Request, name, value string, defaults http.Header) {
	canonical := http.CanonicalHeaderKey(name)
	if canonical == name || canonicalOnly[canonical] || len(defaults.Values(name)) > 0 {
		req.SetHeader(name, value)
		return
	}
	req.SetHeaderVerbatim(name, value)
}

// Prepare copies the params onto a resty request, it does not execute it.
// Header names are sent in the case they are written in.
func (p Params) Prepare(req *resty.Request) *resty.Request {
	return p.prepare(req, nil)
}

func (p Params) prepare(req *resty.Request, defaults http.Header) *resty.Request {
	for name, value := range p.Headers {
		setHeader(req, name, value, defaults)
	}
	if len(p.Query) > 0 {
		req.SetQueryParamsFromValues(p.Query)
	}
	if p.Body != nil {
		req.SetBody(p.Body)
	}
	return req
}

// Send executes the params on the given client. A positive Timeout bounds
// the request on top of whatever deadline ctx already carries.
func Send(ctx context.Context, client *resty.Client, p Params) (*resty.Response, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	req := p.prepare(client.R().SetContext(ctx), client.Header)
	return req.Execute(p.method(), p.URL)
}
