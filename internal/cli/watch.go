package cli

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crewbase/crewbase/internal/store"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var filters []string

	cmd := &cobra.Command{
		Use:   "watch <collection>",
		Short: "Follow live changes to a collection",
		Long: `Subscribe to a collection's change feed and print each change as it
commits. Runs until interrupted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, args[0], filters, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&filters, "filter", nil, "field filter, key=value (repeatable)")

	return cmd
}

func runWatch(opts *RootOptions, collection string, rawFilters []string, cmd *cobra.Command) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub := app.Base.Store().Watch(collection)
	defer sub.Stop()

	formatter.VerboseLog("watching %s", collection)
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-sub.C:
			if !ok {
				return nil
			}
			if !store.Matches(change.Record, storeFilters...) {
				continue
			}
			if err := printChange(formatter, change); err != nil {
				return err
			}
		}
	}
}

func printChange(f *OutputFormatter, change store.Change) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(struct {
			Type       string     `json:"type"`
			Collection string     `json:"collection"`
			Record     RecordView `json:"record"`
		}{
			Type:       strings.ToLower(change.Type.String()),
			Collection: change.Collection,
			Record:     viewOf(change.Record),
		})
	}
	fmt.Fprintf(f.Writer, "%-8s %s/%s\n", change.Type, change.Collection, change.Record.ID)
	return nil
}
