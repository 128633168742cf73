package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/streamzip/pkg/common"
	"github.com/beam-cloud/streamzip/pkg/zip"
)

var LsCmd = &cobra.Command{
	Use:   "ls <source>",
	Short: "List the entries of a ZIP source",
	Args:  cobra.ExactArgs(1),
	RunE:  runLs,
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	t, cleanup, err := openTokenizer(ctx, args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	engine := zip.NewEngine(t)

	entries, err := engine.Entries(ctx)
	if err != nil {
		return err
	}
	if entries != nil {
		for _, entry := range entries {
			fmt.Printf("%10d  %10d  %s\n", entry.CompressedSize, entry.UncompressedSize, entry.Filename)
		}
		return nil
	}

	// Sequential source: walk the archive body, skipping every payload.
	return engine.Unzip(ctx, func(hdr *common.FileHeader) zip.Decision {
		fmt.Printf("%10d  %10d  %s\n", hdr.CompressedSize, hdr.UncompressedSize, hdr.Filename)
		return zip.Decision{}
	})
}
