package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/streamzip/pkg/zip"
)

var CatCmd = &cobra.Command{
	Use:   "cat <source> <entry>",
	Short: "Write a single archive entry to stdout",
	Args:  cobra.ExactArgs(2),
	RunE:  runCat,
}

func runCat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	t, cleanup, err := openTokenizer(ctx, args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := zip.NewEngine(t).ExtractFile(ctx, args[1])
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(data)
	return err
}
