package restyutil

import (
	"io"
	"net/http"
	"net/url"
	"scrapeflow/lib/har"
	"slices"
	"time"

	"github.com/go-resty/resty/v2"
)

const resourceType = "fetch"

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func toHeaders(header http.Header) har.Headers {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	slices.Sort(names)

	out := har.Headers{}
	for _, name := range names {
		for _, value := range header[name] {
			out = append(out, har.Header{Name: name, Value: value})
		}
	}
	return out
}

func toCookies(cookies []*http.Cookie) []har.Cookie {
	out := []har.Cookie{}
	for _, c := range cookies {
		cookie := har.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if !c.Expires.IsZero() {
			cookie.Expires = c.Expires.UTC().Format(time.RFC3339)
		}
		out = append(out, cookie)
	}
	return out
}

func toQuery(rawURL string) []har.NameValue {
	out := []har.NameValue{}
	u, err := url.Parse(rawURL)
	if err != nil {
		return out
	}
	query := u.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		for _, value := range query[key] {
			out = append(out, har.NameValue{Name: key, Value: value})
		}
	}
	return out
}

func requestBody(req *http.Request) (string, error) {
	if req == nil || req.GetBody == nil {
		return "", nil
	}
	body, err := req.GetBody()
	if err != nil {
		return "", err
	}
	defer body.Close()
	read, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(read), nil
}

func captureRequest(req *resty.Request) har.Request {
	out := har.Request{
		Method:      req.Method,
		URL:         req.URL,
		HTTPVersion: "HTTP/1.1",
		Headers:     toHeaders(req.Header),
		QueryString: toQuery(req.URL),
		Cookies:     []har.Cookie{},
		HeadersSize: -1,
	}

	raw := req.RawRequest
	if raw == nil {
		return out
	}
	out.URL = raw.URL.String()
	out.HTTPVersion = raw.Proto
	out.Headers = toHeaders(raw.Header)
	out.QueryString = toQuery(out.URL)
	out.Cookies = toCookies(raw.Cookies())

	body, err := requestBody(raw)
	if err != nil {
		body = "failed to read request body: " + err.Error()
	}
	out.BodySize = int64(len(body))
	if body != "" {
		out.PostData = &har.PostData{
			MimeType: raw.Header.Get("content-type"),
			Text:     body,
		}
	}
	return out
}

func startedDateTime(req *resty.Request) string {
	started := req.Time
	if started.IsZero() {
		started = time.Now()
	}
	return started.UTC().Format(time.RFC3339Nano)
}

// EntryFromResponse converts a completed exchange into a HAR entry, timings
// are filled when the request was traced.
func EntryFromResponse(res *resty.Response) har.Entry {
	body := res.Body()
	entry := har.Entry{
		ResourceTypeName: resourceType,
		Cache:            map[string]any{},
		Request:          captureRequest(res.Request),
		StartedDateTime:  startedDateTime(res.Request),
		Time:             millis(res.Time()),
		Timings: har.Timings{
			Blocked: -1,
			DNS:     -1,
			SSL:     -1,
			Connect: -1,
			Wait:    millis(res.Time()),
		},
		Response: har.Response{
			Status:      res.StatusCode(),
			StatusText:  http.StatusText(res.StatusCode()),
			Headers:     toHeaders(res.Header()),
			Cookies:     toCookies(res.Cookies()),
			RedirectURL: res.Header().Get("location"),
			HeadersSize: -1,
			BodySize:    int64(len(body)),
			Content: har.Content{
				Size:     int64(len(body)),
				MimeType: res.Header().Get("content-type"),
				Text:     string(body),
			},
		},
	}
	if res.RawResponse != nil {
		entry.Response.HTTPVersion = res.RawResponse.Proto
		entry.Response.TransferSize = res.Size()
	}

	trace := res.Request.TraceInfo()
	if trace.TotalTime > 0 {
		entry.Time = millis(trace.TotalTime)
		entry.Timings = har.Timings{
			Blocked: -1,
			DNS:     millis(trace.DNSLookup),
			SSL:     millis(trace.TLSHandshake),
			Connect: millis(trace.TCPConnTime),
			Wait:    millis(trace.ServerTime),
			Receive: millis(trace.ResponseTime),
		}
		if trace.IsConnReused {
			entry.Timings.DNS = -1
			entry.Timings.SSL = -1
			entry.Timings.Connect = -1
		}
		if trace.RemoteAddr != nil {
			entry.ServerIPAddress = trace.RemoteAddr.String()
		}
	}
	return entry
}

// EntryFromError records a request that never produced a response, status
// is zero and the error text is kept in `_error`.
func EntryFromError(req *resty.Request, err error) har.Entry {
	message := err.Error()
	return har.Entry{
		ResourceTypeName: resourceType,
		Cache:            map[string]any{},
		Request:          captureRequest(req),
		StartedDateTime:  startedDateTime(req),
		Timings: har.Timings{
			Blocked: -1,
			DNS:     -1,
			SSL:     -1,
			Connect: -1,
		},
		Response: har.Response{
			Headers:     har.Headers{},
			Cookies:     []har.Cookie{},
			HeadersSize: -1,
			BodySize:    -1,
			Error:       &message,
		},
	}
}
