package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"scrapeflow/lib/document"

	"github.com/go-resty/resty/v2"
)

// Kind names a pre-parse transform.
type Kind string

const (
	// KindNone passes the latest entry through unchanged.
	KindNone Kind = ""
	// KindSoup parses html into a document.Node queried with css selectors.
	KindSoup Kind = "soup"
	// KindLXML parses html into a document.Node queried with xpath.
	KindLXML Kind = "lxml"
	// KindJSON decodes json into maps, slices and float64s.
	KindJSON Kind = "json"
)

var errUnsupportedKind = errors.New("unsupported pre-parse kind")

type parser func(body io.Reader) (any, error)

var parsers = map[Kind]parser{
	KindSoup: func(body io.Reader) (any, error) {
		return document.ParseSoup(body)
	},
	KindLXML: func(body io.Reader) (any, error) {
		return document.ParseXPath(body)
	},
	KindJSON: func(body io.Reader) (any, error) {
		var out any
		err := json.NewDecoder(body).Decode(&out)
		if err != nil {
			return nil, err
		}
		return out, nil
	},
}

func bodyOf(v any) (io.Reader, error) {
	switch value := v.(type) {
	case *resty.Response:
		return bytes.NewReader(value.Body()), nil
	case []byte:
		return bytes.NewReader(value), nil
	case string:
		return bytes.NewReader([]byte(value)), nil
	}
	return nil, fmt.Errorf("cannot pre-parse %T", v)
}

func parseOne(p parser, v any) (any, error) {
	body, err := bodyOf(v)
	if err != nil {
		return nil, err
	}
	return p(body)
}

// parseValue parses a single response or, element-wise, a list of them.
func parseValue(kind Kind, v any) (any, error) {
	p := parsers[kind]
	list, ok := v.([]*resty.Response)
	if !ok {
		return parseOne(p, v)
	}
	out := make([]any, len(list))
	for i, res := range list {
		parsed, err := parseOne(p, res)
		if err != nil {
			return nil, fmt.Errorf("response %d: %w", i, err)
		}
		out[i] = parsed
	}
	return out, nil
}

func (s *Scraper) preParseLatest(kind Kind) error {
	if kind == KindNone {
		s.Apply(func(latest any) any { return latest })
		return nil
	}
	if _, ok := parsers[kind]; !ok {
		return fmt.Errorf("%w %q", errUnsupportedKind, kind)
	}

	latest := s.Get()
	if latest == nil {
		return nil
	}
	parsed, err := parseValue(kind, latest)
	if err != nil {
		return fmt.Errorf("pre-parse %s: %w", kind, err)
	}
	s.push(parsed)
	return nil
}

// PreParse converts the latest entry with the named transform and appends
// the result. An unknown kind or a body that does not parse is logged and
// leaves the history unchanged.
func (s *Scraper) PreParse(kind Kind) *Scraper {
	err := s.preParseLatest(kind)
	if err != nil {
		slog.Warn("pre-parse skipped", "kind", string(kind), "err", err)
	}
	return s
}
