package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"os"
	"scrapeflow/lib/document"
	"scrapeflow/lib/engine"
	"scrapeflow/lib/htmlutil"
	"scrapeflow/lib/itemstore"
	"scrapeflow/lib/request"
	"scrapeflow/lib/scraper"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	fetchParse      string
	fetchSelect     string
	fetchLinks      string
	fetchRoot       string
	fetchFields     []string
	fetchConcurrent bool
	fetchHeaderSet  string
	fetchDb         string
	fetchCollection string
	fetchRecord     string
)

func init() {
	fetchCmd.Flags().StringVar(&fetchParse, "parse", "", "Parse responses as soup (css), lxml (xpath) or json.")
	fetchCmd.Flags().StringVar(&fetchSelect, "select", "", "Collect the text of every match of this query.")
	fetchCmd.Flags().StringVar(&fetchLinks, "links", "", "Collect the links matched by this query.")
	fetchCmd.Flags().StringVar(&fetchRoot, "root", "", "Extract one item per match of this query.")
	fetchCmd.Flags().StringArrayVar(&fetchFields, "field", nil, "An item field as name=query, can be repeated.")
	fetchCmd.Flags().BoolVar(&fetchConcurrent, "concurrent", false, "Send all requests at once instead of one after another.")
	fetchCmd.Flags().StringVar(&fetchHeaderSet, "header-set", "", "The configured header set to send.")
	fetchCmd.Flags().StringVar(&fetchDb, "db", "", "The database to write results to.")
	fetchCmd.Flags().StringVar(&fetchCollection, "collection", "pages", "The collection results are written to.")
	fetchCmd.Flags().StringVar(&fetchRecord, "record", "", "Record every exchange to this HAR file.")
	rootCmd.AddCommand(fetchCmd)
}

// Extraction describes what is kept from a parsed page.
type Extraction struct {
	Select string
	Links  string
	Item   document.Item
}

func parseFields(raw []string) ([]document.Field, error) {
	fields := make([]document.Field, len(raw))
	for i, s := range raw {
		name, query, ok := strings.Cut(s, "=")
		if !ok || name == "" || query == "" {
			return nil, fmt.Errorf("field %q must be written as name=query", s)
		}
		fields[i] = document.Field{Name: name, Query: query}
	}
	return fields, nil
}

func urlRequests(ctx context.Context, e *engine.Engine, args ...any) iter.Seq[request.Params] {
	return func(yield func(request.Params) bool) {
		for _, arg := range args {
			if !yield(request.Params{URL: fmt.Sprint(arg), HeaderSet: fetchHeaderSet}) {
				return
			}
		}
	}
}

// flatten turns the latest result of a scrape into one value per request.
// A single request's result is never split, even when it decoded to a list.
func flatten(v any, requests int) []any {
	if requests == 1 {
		return []any{v}
	}
	switch value := v.(type) {
	case []any:
		return value
	case []*resty.Response:
		out := make([]any, len(value))
		for i, res := range value {
			out[i] = res
		}
		return out
	}
	return []any{v}
}

// Summarize builds the stored record of one fetched page from its parsed
// form.
func (x Extraction) Summarize(ctx context.Context, rawURL string, parsed any) (map[string]any, error) {
	out := map[string]any{"url": rawURL}

	switch value := parsed.(type) {
	case *resty.Response:
		out["status"] = value.StatusCode()
		out["body"] = value.String()
	case document.Node:
		if x.Select != "" {
			texts, err := document.Texts(value, x.Select)
			if err != nil {
				return nil, err
			}
			out["texts"] = texts
		}
		if x.Links != "" {
			base, err := url.Parse(rawURL)
			if err != nil {
				return nil, err
			}
			anchors, err := document.Anchors(ctx, value, x.Links, base)
			if err != nil {
				return nil, err
			}
			links := make([]map[string]any, len(anchors))
			for i, a := range anchors {
				links[i] = map[string]any{"name": a.Name, "href": a.Href}
			}
			out["links"] = links
		}
		if len(x.Item.Fields) > 0 {
			items, err := x.Item.Extract(value)
			if err != nil {
				return nil, err
			}
			out["items"] = items
		}
		if x.Select == "" && x.Links == "" && len(x.Item.Fields) == 0 {
			out["text"] = htmlutil.CleanText(value.Text())
		}
	default:
		out["data"] = value
	}

	return out, nil
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>... [--parse soup|lxml|json] [--db <path/to/output.db>]",
	Short: "Fetches urls through an engine, prints what was extracted and optionally stores it.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fields, err := parseFields(fetchFields)
		if err != nil {
			return err
		}
		extraction := Extraction{
			Select: fetchSelect,
			Links:  fetchLinks,
			Item:   document.Item{Fields: fields, Root: fetchRoot},
		}

		e, err := newEngine(fetchRecord)
		if err != nil {
			return err
		}
		defer func() {
			err := e.Close()
			if err != nil {
				slog.Warn("failed to close engine", "err", err)
			}
		}()

		mode := scraper.Single
		switch {
		case len(args) > 1 && fetchConcurrent:
			mode = scraper.Concurrent
		case len(args) > 1:
			mode = scraper.Sequential
		}

		root := scraper.NewRoot(e)
		s := root.RegisterScraper(
			"fetch",
			scraper.Generated(urlRequests),
			scraper.WithMode(mode),
			scraper.WithPreParse(scraper.Kind(fetchParse)),
		)

		urls := make([]any, len(args))
		for i, arg := range args {
			urls[i] = arg
		}
		_, err = s.Scrape(ctx, urls...)
		if err != nil {
			return err
		}

		records := make([]itemstore.Record, len(args))
		for i, parsed := range flatten(s.Get(), len(args)) {
			data, err := extraction.Summarize(ctx, args[i], parsed)
			if err != nil {
				return fmt.Errorf("extract %s: %w", args[i], err)
			}
			records[i] = itemstore.Record{Key: args[i], Data: data}
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)
		for _, r := range records {
			err = encoder.Encode(r.Data)
			if err != nil {
				return err
			}
		}

		if fetchDb == "" {
			return nil
		}
		store, err := itemstore.Open(fetchDb)
		if err != nil {
			return err
		}
		defer store.Close()

		err = store.Save(ctx, fetchCollection, records)
		if err != nil {
			return err
		}
		slog.Info("saved results", "db", fetchDb, "collection", fetchCollection, "count", len(records))
		return nil
	},
}
