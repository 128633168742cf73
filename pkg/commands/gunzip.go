package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/streamzip/pkg/inflate"
)

var GunzipCmd = &cobra.Command{
	Use:   "gunzip <source>",
	Short: "Decompress a gzip source to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runGunzip,
}

func runGunzip(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	t, cleanup, err := openTokenizer(ctx, args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	inflater := inflate.NewInflater(t, inflate.InflaterOpts{})
	for chunk, err := range inflater.Inflate(ctx) {
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}
