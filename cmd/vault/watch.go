package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/watcher"
)

func createWatchCommand(open appOpener) *cobra.Command {
	var skipExisting bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest files as they appear in a directory",
		Long:  "Ingest every file in dir, then keep watching it and ingest files that are created or rewritten. Files with content already ingested by this watch are skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			feed := &dirFeed{ingest: a.Ingest, state: app.NewSessionState(app.SessionDefaults{}), log: a.Logger}
			w := watcher.New(args[0], func(ctx context.Context, path string) error {
				return feed.add(ctx, cmd, path)
			}, watcher.WithLogger(a.Logger))

			if !skipExisting {
				files, err := w.Existing()
				if err != nil {
					return err
				}
				for _, path := range files {
					_ = feed.add(ctx, cmd, path)
				}
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "only ingest files that appear after the watch starts")
	return cmd
}

// dirFeed remembers digests across events so a rewritten file with the
// same bytes is not ingested twice.
type dirFeed struct {
	mu     sync.Mutex
	ingest *app.IngestService
	state  app.SessionState
	log    *zap.Logger
}

func (f *dirFeed) add(ctx context.Context, cmd *cobra.Command, path string) error {
	up, err := readUpload(path)
	if err != nil {
		f.log.Warn("read watched file failed", zap.String("path", path), zap.Error(err))
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	next, results := f.ingest.Ingest(ctx, f.state, []app.Upload{up})
	f.state = next
	for _, r := range results {
		printFileResult(cmd.OutOrStdout(), r)
	}
	return nil
}
