package cmd

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Print an event whenever a directory changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, err := expandAll(args)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		e := newEngine()
		defer e.Close()

		events := e.Events().Subscribe()
		defer e.Events().Unsubscribe(events)
		if err := e.Watch(dirs[0]); err != nil {
			return err
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-events:
				if err := printOut(cmd.OutOrStdout(), ev); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
