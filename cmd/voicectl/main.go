// voicectl drives the voice task dialogue engine from a terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/voicetask/internal/dates"
	"github.com/ashureev/voicetask/internal/domain"
	"github.com/ashureev/voicetask/internal/roster"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "voicectl",
	Short:         "Developer tools for the voice task dialogue engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("tz", "America/New_York", "task time zone")
	rootCmd.PersistentFlags().String("roster", "", "roster YAML file")
	rootCmd.PersistentFlags().Bool("verbose", false, "log engine activity to stderr")

	cobra.OnInitialize(func() {
		level := slog.LevelWarn
		if verbose, _ := rootCmd.PersistentFlags().GetBool("verbose"); verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadNormalizer(cmd *cobra.Command) (*dates.Normalizer, error) {
	tz, _ := cmd.Flags().GetString("tz")
	loc, err := dates.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return dates.New(loc), nil
}

func loadRoster(cmd *cobra.Command) ([]domain.Child, error) {
	path, _ := cmd.Flags().GetString("roster")
	if path == "" {
		return nil, nil
	}
	return roster.Load(path)
}
