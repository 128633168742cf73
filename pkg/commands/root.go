package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "streamzip",
	Short: "Stream entries out of ZIP and GZIP sources without downloading them whole",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(LsCmd)
	rootCmd.AddCommand(ExtractCmd)
	rootCmd.AddCommand(CatCmd)
	rootCmd.AddCommand(GunzipCmd)
	rootCmd.AddCommand(ScanCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
