package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls <dir>",
	Short: "List a directory, folders first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := expandAll(args)
		if err != nil {
			return err
		}
		e := newEngine()
		defer e.Close()

		contents, err := e.List(paths[0], cfg.ShowHidden)
		if err != nil {
			return err
		}
		return printOut(cmd.OutOrStdout(), contents)
	},
}

var findCmd = &cobra.Command{
	Use:   "find <root> <query>",
	Short: "Search names below a directory",
	Long: `Search names below a directory, ignoring case.
A query containing *, ?, [ or { is matched as a glob against the whole name.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := expandAll(args[:1])
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		e := newEngine()
		defer e.Close()

		results, err := e.Search(ctx, root[0], args[1], cfg.ShowHidden)
		if err != nil {
			return err
		}
		return printOut(cmd.OutOrStdout(), results)
	},
}

var cpCmd = &cobra.Command{
	Use:   "cp <source>... <dest-dir>",
	Short: "Copy files and directories into a directory",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := expandAll(args)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		e := newEngine()
		defer e.Close()

		return e.Copy(ctx, paths[:len(paths)-1], paths[len(paths)-1])
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <source>... <dest-dir>",
	Short: "Move files and directories into a directory",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := expandAll(args)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		e := newEngine()
		defer e.Close()

		return e.Move(ctx, paths[:len(paths)-1], paths[len(paths)-1])
	},
}

var rmTrash bool

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Delete files and directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := expandAll(args)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		e := newEngine()
		defer e.Close()

		return e.Delete(ctx, paths, rmTrash)
	},
}

var dupCmd = &cobra.Command{
	Use:   "dup <path>",
	Short: `Duplicate an item as "<name> - Copy"`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := expandAll(args)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		e := newEngine()
		defer e.Close()

		created, err := e.Duplicate(ctx, paths[0])
		if err != nil {
			return err
		}
		return printOut(cmd.OutOrStdout(), map[string]string{"path": created})
	},
}

var duCmd = &cobra.Command{
	Use:   "du <dir>",
	Short: "Total size of the files below a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := expandAll(args)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		e := newEngine()
		defer e.Close()

		size, err := e.DirSize(ctx, paths[0])
		if err != nil {
			return err
		}
		return printOut(cmd.OutOrStdout(), map[string]any{"path": paths[0], "size": size})
	},
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	rmCmd.Flags().BoolVar(&rmTrash, "trash", false, "move to trash instead of deleting")
	rootCmd.AddCommand(lsCmd, findCmd, cpCmd, mvCmd, rmCmd, dupCmd, duCmd)
}
