package har

import (
	"bytes"
	"encoding/json"
	"iter"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

type Filter func(Entry) bool

func WithResourceType(resourceType string) Filter {
	return func(e Entry) bool {
		return e.ResourceTypeName == resourceType
	}
}

func Fetch() Filter {
	return func(e Entry) bool {
		return e.ResourceTypeName == "fetch" || e.ResourceTypeName == "xhr"
	}
}

func Document() Filter {
	return WithResourceType("document")
}

func ResponseJSON() Filter {
	return func(e Entry) bool {
		return e.IsResponseJSON()
	}
}

func SetsCookie() Filter {
	return func(e Entry) bool {
		return e.HasSetCookie()
	}
}

// Contains matches entries whose serialized form contains term.
func Contains(term string) Filter {
	return func(e Entry) bool {
		return strings.Contains(searchText(e), term)
	}
}

// All chains filters, an entry passes when every filter passes.
func All(filters ...Filter) Filter {
	return func(e Entry) bool {
		for _, f := range filters {
			if f != nil && !f(e) {
				return false
			}
		}
		return true
	}
}

// Filter lazily yields the entries passing f in capture order. The sequence
// can be ranged over more than once.
func (e Entries) Filter(f Filter) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, entry := range e {
			if f != nil && !f(entry) {
				continue
			}
			if !yield(entry) {
				return
			}
		}
	}
}

// GlobalSearch yields every entry whose full serialized content contains
// term, case-sensitively.
func (e Entries) GlobalSearch(term string) iter.Seq[Entry] {
	return e.Filter(Contains(term))
}

// searchText is the entry's json form followed by its raw string fields,
// so a json fragment of a captured body matches without escaped quotes.
func searchText(e Entry) string {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	err := encoder.Encode(e)
	if err != nil {
		buf.Reset()
	}

	raw := []string{e.Request.URL, e.Response.RedirectURL, e.Response.Content.Text}
	if e.Request.PostData != nil {
		raw = append(raw, e.Request.PostData.Text)
	}
	for _, headers := range []Headers{e.Request.Headers, e.Response.Headers} {
		for _, h := range headers {
			raw = append(raw, h.Name+": "+h.Value)
		}
	}
	for _, field := range raw {
		if field == "" {
			continue
		}
		buf.WriteByte('\n')
		buf.WriteString(field)
	}
	return buf.String()
}

type Match struct {
	Entry      Entry
	Similarity float64
}

// MostSimilar ranks the entries by the Jaro-Winkler similarity of their
// query-less url to the query-less form of target, best first.
func (e Entries) MostSimilar(target string) []Match {
	target = Entry{Request: Request{URL: target}}.URLWithoutParams()

	matches := make([]Match, len(e))
	for i, entry := range e {
		matches[i] = Match{
			Entry:      entry,
			Similarity: matchr.JaroWinkler(entry.URLWithoutParams(), target, false),
		}
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	return matches
}
