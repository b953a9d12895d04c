// Package cmd holds the soundboard's cobra commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zjrosen/creek-soundboard/internal/config"
	"github.com/zjrosen/creek-soundboard/internal/log"
	"github.com/zjrosen/creek-soundboard/internal/tracing"
	"github.com/zjrosen/creek-soundboard/internal/ui/board"
	"github.com/zjrosen/creek-soundboard/internal/ui/styles"
)

// LocalConfigFile is looked up in the working directory before the user config.
const LocalConfigFile = ".soundboard.yaml"

var (
	cfgFile   string
	ephemeral bool
	cfg       config.Config
	vp        = viper.New()
	closeLog  = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "soundboard",
	Short: "An offline-first terminal soundboard",
	Long: `Creek Soundboard plays short ambient sounds from a catalog served over
http(s) or from a local directory. Every asset it fetches is kept in a
versioned offline cache, so the board keeps working without a network.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runBoard,
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = closeLog() }()
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default ./"+LocalConfigFile+" or "+userConfigPath()+")")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("origin", "", "where the shell and catalog are served from (http, https or file://)")
	flags.BoolVar(&ephemeral, "ephemeral", false, "keep the offline cache in memory for this run only")

	bindFlags(vp, flags)
}

// bindFlags lets flags override the matching config keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for key, name := range map[string]string{
		"log.debug": "debug",
		"origin":    "origin",
	} {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := readConfig(vp, cfgFile)
	if err != nil {
		return err
	}
	if ephemeral {
		loaded.Cache.Backend = "memory"
	}
	cfg = loaded

	closer, err := log.Init(cfg.Log.File, cfg.Log.Debug)
	if err != nil {
		return err
	}
	closeLog = closer
	log.Info(log.CatConfig, "Configuration loaded", "file", vp.ConfigFileUsed(), "origin", cfg.Origin, "backend", cfg.Cache.Backend)
	return nil
}

// userConfigPath is ~/.config/creek-soundboard/config.yaml or the platform equivalent.
func userConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, config.AppName, "config.yaml")
}

// findConfigFile returns explicit if set, else the first existing default location.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range []string{LocalConfigFile, userConfigPath()} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// readConfig layers defaults, the config file, SOUNDBOARD_* environment
// variables and bound flags, then validates the result.
func readConfig(v *viper.Viper, explicit string) (config.Config, error) {
	setDefaults(v, config.Defaults())
	v.SetEnvPrefix("SOUNDBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := findConfigFile(explicit); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	c := config.Defaults()
	if err := v.Unmarshal(&c); err != nil {
		return config.Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := config.Validate(c); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("origin", d.Origin)
	v.SetDefault("catalog_path", d.CatalogPath)
	v.SetDefault("http_timeout", d.HTTPTimeout)

	v.SetDefault("cache.version", d.Cache.Version)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_prefix", d.Cache.RedisPrefix)
	v.SetDefault("cache.shell", d.Cache.Shell)
	v.SetDefault("cache.media_concurrency", d.Cache.MediaConcurrency)

	v.SetDefault("audio.player", d.Audio.Player)
	v.SetDefault("audio.spool_dir", d.Audio.SpoolDir)
	v.SetDefault("audio.preload_concurrency", d.Audio.PreloadConcurrency)

	v.SetDefault("ui.columns", d.UI.Columns)
	v.SetDefault("ui.toast_duration", d.UI.ToastDuration)
	v.SetDefault("ui.show_help", d.UI.ShowHelp)

	v.SetDefault("theme.mode", d.Theme.Mode)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.debug", d.Log.Debug)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file", d.Tracing.File)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
}

func runBoard(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if _, err := styles.Apply(cfg.Theme.Mode); err != nil {
		return err
	}

	shutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// The board loads through the worker while it installs; until a bucket
	// is active the worker goes straight to the network.
	go a.start(ctx)

	bridge := board.NewBridge()
	ctrl, err := a.newController(bridge, bridge)
	if err != nil {
		return err
	}
	defer ctrl.Stop()

	m := board.New(board.Config{
		Player:        ctrl,
		Client:        a.client,
		CatalogURL:    a.catalogURL,
		Resolve:       a.worker.Resolve,
		Columns:       cfg.UI.Columns,
		ToastDuration: cfg.UI.ToastDuration,
		ShowHelp:      cfg.UI.ShowHelp,
		Context:       ctx,
	})

	p := tea.NewProgram(m.TeaModel(), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	go bridge.Run(ctx, p.Send)
	watchConfig(vp, p.Send)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running board: %w", err)
	}
	return nil
}

// watchConfig pushes theme changes to the running board when the config file changes.
func watchConfig(v *viper.Viper, send func(tea.Msg)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info(log.CatConfig, "Config file changed", "file", e.Name, "op", e.Op.String())
		send(board.ThemeMsg{Mode: v.GetString("theme.mode")})
	})
	v.WatchConfig()
}
