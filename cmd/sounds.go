package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
)

var soundsCmd = &cobra.Command{
	Use:   "sounds",
	Short: "List the sounds in the catalog",
	RunE:  runSounds,
}

func init() {
	rootCmd.AddCommand(soundsCmd)
}

func runSounds(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	a.start(ctx)

	c, err := catalog.Load(ctx, a.client, a.catalogURL)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.Len() == 0 {
		fmt.Fprintf(out, "No sounds in %s\n", a.catalogURL)
		return nil
	}

	idLen, nameLen := maxLens(c.Sounds)
	for _, s := range c.Sounds {
		icon := s.Icon
		if icon == "" {
			icon = "-"
		}
		fmt.Fprintf(out, "%-*s  %-*s  %s  %s\n", idLen, s.ID, nameLen, s.Name, s.File, icon)
	}
	return nil
}

// maxLens returns the length of the longest id and the longest name.
func maxLens(sounds []catalog.Sound) (int, int) {
	var idLen, nameLen int
	for _, s := range sounds {
		idLen = max(idLen, len(s.ID))
		nameLen = max(nameLen, len(s.Name))
	}
	return idLen, nameLen
}
