package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crewbase/crewbase/internal/store"
)

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		filters []string
		text    string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "search <collection>",
		Short: "Query records by field filters and free text",
		Long: `Query a collection. --filter adds exact field matches and may repeat;
--text matches against the collection's indexed search fields, so
partial and diacritic-insensitive input finds records.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(rootOpts, args[0], filters, text, limit, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&filters, "filter", nil, "field filter, key=value (repeatable)")
	cmd.Flags().StringVar(&text, "text", "", "free-text search over indexed fields")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records to print (0 = all)")

	return cmd
}

func runSearch(opts *RootOptions, collection string, rawFilters []string, text string, limit int, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	storeFilters, err := parseFilters(rawFilters)
	if err != nil {
		formatter.Error("COMMAND", err.Error(), nil)
		return WrapExitError(ExitCommandError, err.Error(), err)
	}

	app, closer, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closer()

	records, err := app.Base.FetchMany(cmd.Context(), collection, storeFilters, text)
	if err != nil {
		return outputRecordError(formatter, err)
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	if opts.Format == "json" {
		views := make([]RecordView, len(records))
		for i, rec := range records {
			views[i] = viewOf(rec)
		}
		return formatter.Success(views)
	}

	formatter.VerboseLog("%d record(s) in %s", len(records), collection)
	for _, rec := range records {
		printRecord(formatter, rec)
	}
	if len(records) == 0 {
		fmt.Fprintln(formatter.Writer, "no records")
	}
	return nil
}

func parseFilters(raw []string) ([]store.Filter, error) {
	filters := make([]store.Filter, 0, len(raw))
	for _, r := range raw {
		key, value, ok := strings.Cut(r, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed filter %q: expected key=value", r)
		}
		filters = append(filters, store.Eq(key, value))
	}
	return filters, nil
}
