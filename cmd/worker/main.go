package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"upload-column/internal/catalog"
	"upload-column/internal/column"
	"upload-column/internal/config"
	"upload-column/internal/sweep"
	"upload-column/internal/upload"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "worker",
		Short:        "Background maintenance for staged uploads",
		SilenceUsage: true,
	}
	root.AddCommand(newSweepCmd(), newInspectCmd())
	return root
}

func newSweepCmd() *cobra.Command {
	var (
		once     bool
		maxAge   time.Duration
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove temp upload directories older than the max age",
		Long: `Walks the temp directory of every upload column and removes staged
uploads that were never saved. Runs until interrupted unless --once is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			slog.SetDefault(cfg.NewLogger(os.Stdout))
			if maxAge <= 0 {
				maxAge = cfg.SweepMaxAge
			}
			if interval <= 0 {
				interval = cfg.SweepInterval
			}

			fs := afero.NewOsFs()
			kinds, err := loadKinds(fs, cfg)
			if err != nil {
				return err
			}
			s := sweep.New(fs, catalog.TmpDirs(kinds), sweep.WithMaxAge(maxAge), sweep.WithInterval(interval))

			if once {
				res := s.RunOnce(cmd.Context())
				if res.Errors > 0 {
					return fmt.Errorf("sweep finished with %d errors", res.Errors)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			s.Start(ctx)
			<-ctx.Done()
			s.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "age after which staged uploads are removed (default SWEEP_MAX_AGE)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between sweeps (default SWEEP_INTERVAL)")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <temp-token>",
		Short: "Show what a temp token refers to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fs := afero.NewOsFs()
			kinds, err := loadKinds(fs, cfg)
			if err != nil {
				return err
			}
			return inspect(cmd.OutOrStdout(), fs, catalog.TmpDirs(kinds), args[0], time.Now())
		},
	}
}

func loadKinds(fs afero.Fs, cfg *config.Config) (map[string]*column.Registry, error) {
	return catalog.Registries(
		column.WithFs(fs),
		column.WithDefaults(column.Config{RootDir: cfg.RootDir, TmpDir: upload.Static(cfg.TmpDir)}),
	)
}

func inspect(w io.Writer, fs afero.Fs, tmpDirs []string, token string, now time.Time) error {
	tempID, stored, original, err := upload.ParseToken(token)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "temp id:   %s\n", tempID)
	fmt.Fprintf(w, "stored as: %s\n", stored)
	if original != "" {
		fmt.Fprintf(w, "original:  %s\n", original)
	}
	if created, ok := upload.TempIDTime(tempID); ok {
		fmt.Fprintf(w, "staged:    %s (%s)\n", created.UTC().Format(time.RFC3339), humanize.RelTime(created, now, "ago", "from now"))
	}

	found := 0
	for _, dir := range tmpDirs {
		entries, err := afero.ReadDir(fs, filepath.Join(dir, tempID))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			found++
			fmt.Fprintf(w, "  %s  %s\n", filepath.Join(dir, tempID, e.Name()), humanize.Bytes(uint64(e.Size())))
		}
	}
	if found == 0 {
		fmt.Fprintln(w, "staged files: none (expired or already saved)")
	}
	return nil
}
