package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/voicetask/internal/dates"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(normalizeCmd)
	normalizeCmd.Flags().String("now", "", "reference time (RFC3339), default current time")
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <phrase>",
	Short: "Resolve a spoken due-date phrase",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		norm, err := loadNormalizer(cmd)
		if err != nil {
			return err
		}
		if ref, _ := cmd.Flags().GetString("now"); ref != "" {
			at, err := time.Parse(time.RFC3339, ref)
			if err != nil {
				return fmt.Errorf("parse --now: %w", err)
			}
			norm = dates.NewWithClock(norm.Location(), func() time.Time { return at })
		}

		due := norm.Normalize(strings.Join(args, " "))
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "iso:     %s\n", due.Format(time.RFC3339))
		fmt.Fprintf(out, "epochMs: %d\n", due.UnixMilli())
		fmt.Fprintf(out, "spoken:  %s\n", norm.FormatDue(due))
		return nil
	},
}
