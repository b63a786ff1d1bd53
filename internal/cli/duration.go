package cli

import (
	"fmt"
	"strconv"

	"modwarden/internal/duration"

	"github.com/spf13/cobra"
)

func newDurationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duration",
		Short: "Convert between duration tokens and seconds",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "parse <token>",
		Short:   "Print the seconds in a token such as 10m or 2d",
		Args:    cobra.ExactArgs(1),
		Example: "  modwarden duration parse 1h",
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := duration.ParsePositive(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", seconds, duration.Format(seconds))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "format <seconds>",
		Short: "Render a second count in words",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %q", duration.ErrInvalidFormat, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), duration.Format(seconds))
			return nil
		},
	})

	return cmd
}
