package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewAutonumberCommand creates the autonumber command group.
func NewAutonumberCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autonumber",
		Short: "Control sequential code allocation",
	}

	cmd.AddCommand(newAutonumberStartCommand(rootOpts))
	cmd.AddCommand(newAutonumberStopCommand(rootOpts))
	cmd.AddCommand(newAutonumberRefreshCommand(rootOpts))

	return cmd
}

func newAutonumberStartCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "start <collection>",
		Short:         "Enable allocation for a collection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutonumberToggle(rootOpts, args[0], true, cmd)
		},
	}
}

func newAutonumberStopCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stop <collection>",
		Short:         "Disable allocation for a collection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutonumberToggle(rootOpts, args[0], false, cmd)
		},
	}
}

func newAutonumberRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "refresh <collection>",
		Short: "Reset the counter from existing records",
		Long: `Reset a collection's counter to the highest code already allocated, so
the next create continues the sequence. --value forces an explicit
counter value instead.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var explicit *int64
			if value != "" {
				n, err := strconv.ParseInt(value, 10, 64)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --value %q", value), err)
				}
				explicit = &n
			}
			return runAutonumberRefresh(rootOpts, args[0], explicit, cmd)
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "explicit counter value")

	return cmd
}

func runAutonumberToggle(opts *RootOptions, collection string, enable bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	app, closer, err := openAppCreate(opts)
	if err != nil {
		return err
	}
	defer closer()

	if enable {
		err = app.Base.AutonumberStart(cmd.Context(), collection)
	} else {
		err = app.Base.AutonumberStop(cmd.Context(), collection)
	}
	if err != nil {
		return outputRecordError(formatter, err)
	}

	verb := "stopped"
	if enable {
		verb = "started"
	}
	return formatter.Success(fmt.Sprintf("autonumber %s for %s", verb, collection))
}

func runAutonumberRefresh(opts *RootOptions, collection string, explicit *int64, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	app, closer, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closer()

	current, err := app.Base.AutonumberRefresh(cmd.Context(), collection, explicit)
	if err != nil {
		return outputRecordError(formatter, err)
	}
	return formatter.Success(fmt.Sprintf("autonumber counter for %s is now %d", collection, current))
}
