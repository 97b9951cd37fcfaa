package cmd

import (
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluentfiles/fsengine/fsops"
)

var (
	v   = viper.New()
	cfg Config
)

var rootCmd = &cobra.Command{
	Use:   "fsengine",
	Short: "fsengine - filesystem operations for a file explorer",
	Long: `fsengine lists, searches, copies, moves and watches directories.

Run "fsengine serve" to expose the operations over HTTP and WebSocket,
or use the subcommands directly from a shell.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("config")
		loaded, err := loadConfig(v, file)
		if err != nil {
			return err
		}
		cfg = loaded
		fsops.InitLogger(fsops.LogOptions{Dir: cfg.Log.Dir, Debug: cfg.Log.Debug})
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	setDefaults(v)
	if err := bindFlags(v, rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

func newEngine() *fsops.Engine {
	return fsops.New(cfg.engineOptions())
}

// expandAll resolves a leading ~ in every path argument.
func expandAll(paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		expanded, err := homedir.Expand(p)
		if err != nil {
			return nil, err
		}
		out[i] = expanded
	}
	return out, nil
}
