package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/voicetask/internal/fuzzy"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(matchCmd)
}

var matchCmd = &cobra.Command{
	Use:   "match <name>",
	Short: "Resolve a spoken name against the roster",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		children, err := loadRoster(cmd)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			return errors.New("--roster with at least one child is required")
		}

		res := fuzzy.Match(strings.Join(args, " "), children)
		out := cmd.OutOrStdout()
		switch {
		case res.Found():
			fmt.Fprintf(out, "match: %s (id %s)\n", res.Match.Name, res.Match.ID)
		case res.IsAmbiguous:
			fmt.Fprintf(out, "ambiguous: %s\n", fuzzy.Question(res.Candidates))
		default:
			fmt.Fprintln(out, "no match")
		}
		return nil
	},
}
