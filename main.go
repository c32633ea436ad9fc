package main

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/briangreenhill/thumbcache/internal/app"
	"github.com/briangreenhill/thumbcache/internal/config"
	"github.com/briangreenhill/thumbcache/internal/jobs"
	"github.com/briangreenhill/thumbcache/thumbnail"
)

const version = "v0.1.0"

func main() {
	if err := runCLI(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCLI(args []string) error {
	cmd := newRootCmd(os.Stdout)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "thumbcache",
		Short:         "Look up, prune and clear cached website thumbnails",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(
		newFetchCmd(),
		newPruneCmd(),
		newClearCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Printf("thumbcache %s\n", version)
			},
		},
	)
	return root
}

// setup loads configuration and opens the service with a logger on stderr
func setup(opts ...thumbnail.Option) (*thumbnail.Service, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := app.NewLogger(zerolog.ConsoleWriter{Out: os.Stderr}, cfg.LogLevel)
	return app.NewService(cfg, logger, opts...), logger, nil
}

func newFetchCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Resolve the thumbnail for URL and write it as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := jobs.ParseTarget(args[0])
			if err != nil {
				return err
			}

			// Network results are delivered on this goroutine via the queue
			queue := thumbnail.NewMainQueue()
			svc, _, err := setup(thumbnail.WithDispatcher(queue))
			if err != nil {
				return err
			}
			defer svc.Close() //nolint:errcheck

			var (
				img       image.Image
				lookupErr error
			)
			svc.Thumbnail(cmd.Context(), u, func(i image.Image, err error) {
				img, lookupErr = i, err
				queue.Stop()
			})
			queue.Run()

			if lookupErr != nil {
				return fmt.Errorf("thumbnail for %s: %w", u, lookupErr)
			}
			return writePNG(cmd, output, img)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the PNG to this file instead of stdout")
	return cmd
}

func writePNG(cmd *cobra.Command, path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if path == "" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	b := img.Bounds()
	cmd.PrintErrf("wrote %dx%d thumbnail to %s\n", b.Dx(), b.Dy(), path)
	return nil
}

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired thumbnails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close() //nolint:errcheck

			n, err := svc.RemoveExpired()
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			logger.Info().Int("removed", n).Msg("pruned expired thumbnails")
			cmd.Printf("removed %d expired thumbnails\n", n)
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached thumbnail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close() //nolint:errcheck

			if err := svc.RemoveAll(); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			cmd.Println("thumbnail cache cleared")
			return nil
		},
	}
}

