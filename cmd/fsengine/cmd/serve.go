package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluentfiles/fsengine/fsops"
)

var serveWatch string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the filesystem API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	e := newEngine()
	defer e.Close()

	if serveWatch != "" {
		dirs, err := expandAll([]string{serveWatch})
		if err != nil {
			return err
		}
		if err := e.Watch(dirs[0]); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           fsops.NewHandlers(e, cfg.ShowHidden).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Printf("fsengine listening on http://%s\n", cfg.Listen)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func init() {
	serveCmd.Flags().StringVar(&serveWatch, "watch", "", "directory to watch on startup")
	rootCmd.AddCommand(serveCmd)
}
