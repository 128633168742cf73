package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/beam-cloud/streamzip/pkg/common"
	"github.com/beam-cloud/streamzip/pkg/zip"
)

type ExtractCmdOptions struct {
	OutputPath string
	Names      []string
}

var extractOpts = &ExtractCmdOptions{}

var ExtractCmd = &cobra.Command{
	Use:   "extract <source>",
	Short: "Extract entries from a ZIP source to a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	ExtractCmd.Flags().StringVarP(&extractOpts.OutputPath, "output", "o", ".", "Output path for the extraction")
	ExtractCmd.Flags().StringSliceVarP(&extractOpts.Names, "name", "n", nil, "Extract only the named entries (default: all)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	t, cleanup, err := openTokenizer(ctx, args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	if err := os.MkdirAll(extractOpts.OutputPath, 0755); err != nil {
		return err
	}

	wanted := make(map[string]bool, len(extractOpts.Names))
	for _, name := range extractOpts.Names {
		wanted[name] = true
	}

	engine := zip.NewEngine(t)
	return engine.Unzip(ctx, func(hdr *common.FileHeader) zip.Decision {
		if len(wanted) > 0 && !wanted[hdr.Filename] {
			return zip.Decision{}
		}
		if strings.HasSuffix(hdr.Filename, "/") {
			// directory entry
			return zip.Decision{}
		}

		name := hdr.Filename
		return zip.Decision{Handler: func(ctx context.Context, data []byte) error {
			outPath := filepath.Join(extractOpts.OutputPath, filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
				return err
			}
			log.Info().Msgf("Extracting... %s", name)
			return os.WriteFile(outPath, data, 0644)
		}}
	})
}
