package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
)

func createIngestCommand(open appOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Add documents to the store",
		Long:  "Load, chunk and embed each file into the configured collection. A file that fails is reported and the rest continue.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			uploads := make([]app.Upload, 0, len(args))
			var failed int
			for _, path := range args {
				up, err := readUpload(path)
				if err != nil {
					cmd.PrintErrf("  %s: %v\n", path, err)
					failed++
					continue
				}
				uploads = append(uploads, up)
			}

			state := app.NewSessionState(app.SessionDefaults{})
			_, results := a.Ingest.Ingest(ctx, state, uploads)
			for _, r := range results {
				printFileResult(cmd.OutOrStdout(), r)
				if r.Status == app.StatusFailed {
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

// readUpload reads a local file. The content type is left to the loader,
// which falls back to the extension.
func readUpload(path string) (app.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return app.Upload{}, fmt.Errorf("read file: %w", err)
	}
	return app.Upload{Name: filepath.Base(path), Data: data}, nil
}

func printFileResult(w io.Writer, r app.FileResult) {
	switch r.Status {
	case app.StatusIngested:
		fmt.Fprintf(w, "  %-8s %s (%s, %d chunks)\n", r.Status, r.Name, r.Kind, r.Chunks)
	case app.StatusQueued:
		fmt.Fprintf(w, "  %-8s %s (job %s)\n", r.Status, r.Name, r.JobID)
	default:
		if r.Error != "" {
			fmt.Fprintf(w, "  %-8s %s: %s\n", r.Status, r.Name, r.Error)
			return
		}
		fmt.Fprintf(w, "  %-8s %s\n", r.Status, r.Name)
	}
}
