package commands

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/beam-cloud/streamzip/pkg/token"
	"github.com/beam-cloud/streamzip/pkg/zip"
)

type ScanCmdOptions struct {
	Concurrency int
}

var scanOpts = &ScanCmdOptions{}

var ScanCmd = &cobra.Command{
	Use:   "scan <directory>",
	Short: "Walk a directory tree and summarize every ZIP archive in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	ScanCmd.Flags().IntVarP(&scanOpts.Concurrency, "concurrency", "c", 8, "Archives inspected in parallel")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var paths []string
	err := godirwalk.Walk(args[0], &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if strings.HasSuffix(path, ".zip") || strings.HasSuffix(path, ".docx") ||
				strings.HasSuffix(path, ".xlsx") || strings.HasSuffix(path, ".odp") {
				paths = append(paths, path)
			}
			return nil
		},
		Unsorted: false,
	})
	if err != nil {
		return err
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanOpts.Concurrency)

	for _, path := range paths {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			t, err := token.NewFileTokenizer(f)
			if err != nil {
				return err
			}

			engine := zip.NewEngine(t)
			if ok, err := engine.IsZip(ctx); err != nil || !ok {
				if err == nil {
					log.Debug().Str("path", path).Msg("not a zip, skipping")
				}
				return err
			}

			entries, err := engine.Entries(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			var total uint64
			for _, entry := range entries {
				total += uint64(entry.UncompressedSize)
			}

			mu.Lock()
			fmt.Printf("%s: %d entries, %d bytes uncompressed\n", path, len(entries), total)
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}
