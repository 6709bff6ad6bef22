package har

import (
	"strings"
)

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers keeps the order, casing and duplicates of the capture.
type Headers []Header

// Get returns the value of the first header matching name, case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, header := range h {
		if strings.EqualFold(header.Name, name) {
			return header.Value, true
		}
	}
	return "", false
}

// Values returns every value of headers matching name, in capture order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, header := range h {
		if strings.EqualFold(header.Name, name) {
			out = append(out, header.Value)
		}
	}
	return out
}

func (h Headers) Tuples() [][2]string {
	out := make([][2]string, len(h))
	for i, header := range h {
		out[i] = [2]string{header.Name, header.Value}
	}
	return out
}

// Map collapses the headers into unique keys, a later duplicate overwrites
// an earlier one.
func (h Headers) Map() map[string]string {
	out := make(map[string]string, len(h))
	for _, header := range h {
		out[header.Name] = header.Value
	}
	return out
}

func (h Headers) Filter(keep func(Header) bool) Headers {
	out := Headers{}
	for _, header := range h {
		if keep(header) {
			out = append(out, header)
		}
	}
	return out
}

// WithoutPseudo drops HTTP/2 pseudo headers (:method, :authority, ...).
func (h Headers) WithoutPseudo() Headers {
	return h.Filter(func(header Header) bool {
		return !IsPseudo(header.Name)
	})
}

// WithoutBrowser drops pseudo headers and the headers a browser or HTTP
// client computes on its own.
func (h Headers) WithoutBrowser() Headers {
	return h.Filter(func(header Header) bool {
		return !IsPseudo(header.Name) && !IsBrowserComputed(header.Name)
	})
}

func IsPseudo(name string) bool {
	return strings.HasPrefix(name, ":")
}

var browserComputed = map[string]struct{}{
	"referer":    {},
	"host":       {},
	"user-agent": {},
}

// IsBrowserComputed reports headers that should not be replayed verbatim:
// accept*, sec-*, referer, host and user-agent.
func IsBrowserComputed(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "accept") || strings.HasPrefix(lower, "sec-") {
		return true
	}
	_, ok := browserComputed[lower]
	return ok
}
