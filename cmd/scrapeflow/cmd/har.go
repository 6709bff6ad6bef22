package cmd

import (
	"fmt"
	"maps"
	"os"
	"scrapeflow/lib/har"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	harType      string
	harJSON      bool
	harSetCookie bool
	harLimit     int
	harRecord    string
)

func init() {
	for _, cmd := range []*cobra.Command{harListCmd, harSearchCmd} {
		cmd.Flags().StringVar(&harType, "type", "", "Only show entries of this resource type, \"fetch\" also matches xhr.")
		cmd.Flags().BoolVar(&harJSON, "json", false, "Only show entries with a json response.")
		cmd.Flags().BoolVar(&harSetCookie, "set-cookie", false, "Only show entries whose response sets cookies.")
	}
	harMatchCmd.Flags().IntVar(&harLimit, "limit", 10, "The number of matches to show.")
	harMimicCmd.Flags().StringVar(&harRecord, "record", "", "Record the replayed exchange to this HAR file.")

	harCmd.AddCommand(harListCmd, harSearchCmd, harParamsCmd, harMimicCmd, harMatchCmd, harCookiesCmd)
	rootCmd.AddCommand(harCmd)
}

func entryFilter() har.Filter {
	var typeFilter har.Filter
	switch harType {
	case "":
	case "fetch":
		typeFilter = har.Fetch()
	default:
		typeFilter = har.WithResourceType(harType)
	}
	var jsonFilter har.Filter
	if harJSON {
		jsonFilter = har.ResponseJSON()
	}
	var cookieFilter har.Filter
	if harSetCookie {
		cookieFilter = har.SetsCookie()
	}
	return har.All(typeFilter, jsonFilter, cookieFilter)
}

func loadEntries(path string) (har.Entries, error) {
	archive, err := har.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return archive.Log.Entries, nil
}

func loadEntry(path, index string) (har.Entry, error) {
	entries, err := loadEntries(path)
	if err != nil {
		return har.Entry{}, err
	}
	i, err := parseIndex(index)
	if err != nil {
		return har.Entry{}, err
	}
	return entries.At(i)
}

func printEntries(entries har.Entries, filter har.Filter) {
	t := newTable()
	t.AppendHeader(table.Row{"#", "Method", "Status", "Type", "URL"})
	for i, e := range entries {
		if !filter(e) {
			continue
		}
		t.AppendRow(table.Row{i, e.Method(), e.Status(), e.ResourceType(), truncate(e.URL(), 100)})
	}
	t.Render()
}

var harCmd = &cobra.Command{
	Use:   "har",
	Short: "Inspects and replays captured browser traffic.",
}

var harListCmd = &cobra.Command{
	Use:   "list <file.har>",
	Short: "Lists the entries of a HAR file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := loadEntries(args[0])
		if err != nil {
			return err
		}
		printEntries(entries, entryFilter())
		return nil
	},
}

var harSearchCmd = &cobra.Command{
	Use:   "search <file.har> <term>",
	Short: "Lists the entries whose request or response contains a term.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := loadEntries(args[0])
		if err != nil {
			return err
		}
		printEntries(entries, har.All(entryFilter(), har.Contains(args[1])))
		return nil
	},
}

var harParamsCmd = &cobra.Command{
	Use:   "params <file.har> <index>",
	Short: "Prints the request parameters that would replay an entry.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := loadEntry(args[0], args[1])
		if err != nil {
			return err
		}
		params := har.BuildRequestParams(entry)

		fmt.Printf("%s %s\n", params.Method, params.URL)
		t := newTable()
		t.AppendHeader(table.Row{"Header", "Value"})
		for _, name := range slices.Sorted(maps.Keys(params.Headers)) {
			t.AppendRow(table.Row{name, truncate(params.Headers[name], 80)})
		}
		t.Render()
		if len(params.Body) > 0 {
			fmt.Println(string(params.Body))
		}
		return nil
	},
}

var harMimicCmd = &cobra.Command{
	Use:   "mimic <file.har> <index>",
	Short: "Replays an entry through an engine and prints the response.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := loadEntry(args[0], args[1])
		if err != nil {
			return err
		}
		e, err := newEngine(harRecord)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := har.Mimic(cmd.Context(), e, entry)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s (recorded %d)\n", res.Status(), entry.Status())
		fmt.Println(res.String())
		return nil
	},
}

var harMatchCmd = &cobra.Command{
	Use:   "match <file.har> <url>",
	Short: "Lists the entries whose url is the most similar to a url.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := loadEntries(args[0])
		if err != nil {
			return err
		}
		matches := entries.MostSimilar(args[1])
		if len(matches) > harLimit {
			matches = matches[:harLimit]
		}

		t := newTable()
		t.AppendHeader(table.Row{"Similarity", "Method", "Status", "URL"})
		for _, m := range matches {
			t.AppendRow(table.Row{
				fmt.Sprintf("%.3f", m.Similarity),
				m.Entry.Method(),
				m.Entry.Status(),
				truncate(m.Entry.URL(), 100),
			})
		}
		t.Render()
		return nil
	},
}

var harCookiesCmd = &cobra.Command{
	Use:   "cookies <file.har> <index>",
	Short: "Prints the cookies sent with an entry and the ones its response sets.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := loadEntry(args[0], args[1])
		if err != nil {
			return err
		}

		cookies := har.Cookies(entry)
		t := newTable()
		t.AppendHeader(table.Row{"Cookie", "Value"})
		for _, name := range slices.Sorted(maps.Keys(cookies)) {
			t.AppendRow(table.Row{name, truncate(cookies[name], 80)})
		}
		t.Render()

		if entry.HasSetCookie() {
			fmt.Println(strings.Join(entry.SetCookieHeaders(), "\n"))
		}
		return nil
	},
}
