package har

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

func (e Entry) Status() int {
	return e.Response.Status
}

func (e Entry) Method() string {
	return e.Request.Method
}

func (e Entry) URL() string {
	return e.Request.URL
}

// URLWithoutParams strips the query string and fragment.
func (e Entry) URLWithoutParams() string {
	u, err := url.Parse(e.Request.URL)
	if err != nil {
		before, _, _ := strings.Cut(e.Request.URL, "?")
		return before
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func (e Entry) ResourceType() string {
	return e.ResourceTypeName
}

// ResponseContentType prefers the recorded content mime type and falls back
// to the content-type response header.
func (e Entry) ResponseContentType() string {
	if e.Response.Content.MimeType != "" {
		return e.Response.Content.MimeType
	}
	value, _ := e.Response.Headers.Get("content-type")
	return value
}

func (e Entry) IsResponseJSON() bool {
	mime, _, _ := strings.Cut(e.ResponseContentType(), ";")
	mime = strings.TrimSpace(strings.ToLower(mime))
	return mime == "application/json" || strings.HasSuffix(mime, "+json")
}

func (e Entry) SetCookieHeaders() []string {
	return e.Response.Headers.Values("set-cookie")
}

func (e Entry) HasSetCookie() bool {
	return len(e.SetCookieHeaders()) > 0
}

// StartedAt parses startedDateTime, it returns the zero time when the field
// is missing or malformed.
func (e Entry) StartedAt() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.StartedDateTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// String renders the entry as a one-line summary: [METHOD STATUS TYPE] url
func (e Entry) String() string {
	return fmt.Sprintf("[%s %d %s] %s", e.Request.Method, e.Response.Status, e.ResourceTypeName, e.Request.URL)
}
