package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/zjrosen/creek-soundboard/internal/config"
)

var (
	initLocal bool
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default config file",
	Long: `Write a commented default config to path, to ./` + LocalConfigFile + ` with
--local, or to the user config directory otherwise.`,
	Args: cobra.MaximumNArgs(1),
	// init must work even when the current config is broken.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initLocal, "local", false, "write ./"+LocalConfigFile)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := userConfigPath()
	switch {
	case len(args) == 1:
		path = args[0]
	case initLocal:
		path = LocalConfigFile
	}
	if path == "" {
		return errors.New("cannot determine the user config directory; pass a path")
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewBufferString(config.DefaultConfigTemplate())); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
