package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/record"
)

// RecordView is the wire shape of one record in command output.
type RecordView struct {
	ID        string          `json:"id"`
	Fields    document.Fields `json:"fields"`
	CreatedAt time.Time       `json:"created_at"`
	CreatedBy string          `json:"created_by"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy string          `json:"updated_by"`
}

func viewOf(rec document.Record) RecordView {
	return RecordView{
		ID:        rec.ID,
		Fields:    rec.Fields,
		CreatedAt: rec.CreatedAt,
		CreatedBy: rec.CreatedBy,
		UpdatedAt: rec.UpdatedAt,
		UpdatedBy: rec.UpdatedBy,
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <collection> <id>",
		Short:         "Fetch one record by identifier",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runGet(opts *RootOptions, collection, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	app, closer, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closer()

	rec, ok, err := app.Base.FetchOne(cmd.Context(), collection, id)
	if err != nil {
		return outputRecordError(formatter, err)
	}
	if !ok {
		formatter.Error("MISSING_KEY", fmt.Sprintf("%s/%s not found", collection, id), nil)
		return WrapExitError(ExitFailure, fmt.Sprintf("%s/%s not found", collection, id), nil)
	}

	if opts.Format == "json" {
		return formatter.Success(viewOf(rec))
	}
	printRecord(formatter, rec)
	return nil
}

func printRecord(f *OutputFormatter, rec document.Record) {
	fmt.Fprintf(f.Writer, "%s\n", rec.ID)
	names := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == document.TokensField {
			continue
		}
		fmt.Fprintf(f.Writer, "  %s: %s\n", name, formatValue(rec.Fields[name]))
	}
	fmt.Fprintf(f.Writer, "  (created %s by %s, updated %s by %s)\n",
		rec.CreatedAt.Format(time.RFC3339), rec.CreatedBy,
		rec.UpdatedAt.Format(time.RFC3339), rec.UpdatedBy)
}

func formatValue(v any) string {
	switch v.(type) {
	case []any, map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

// outputRecordError renders a coded record error and maps it to an
// exit code.
func outputRecordError(f *OutputFormatter, err error) error {
	var re *record.Error
	if errors.As(err, &re) {
		f.Error(string(re.Code), re.Message, nil)
		return WrapExitError(ExitFailure, re.Message, err)
	}
	f.Error("COMMAND", err.Error(), nil)
	return WrapExitError(ExitCommandError, err.Error(), err)
}
