package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var cacheFormat string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the offline cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache buckets and their entry counts",
	RunE:  runCacheStatus,
}

var cacheInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and activate the current cache bucket",
	Long: `Fetch every shell asset and the catalog's media into the current bucket,
then activate it and delete older buckets. Does nothing if the bucket is
already active.`,
	RunE: runCacheInstall,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache bucket",
	RunE:  runCacheClear,
}

func init() {
	cacheStatusCmd.Flags().StringVar(&cacheFormat, "format", "text", "output format: text or yaml")
	cacheCmd.AddCommand(cacheStatusCmd, cacheInstallCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// cacheStatus is the yaml form of `cache status`.
type cacheStatus struct {
	Backend string        `yaml:"backend"`
	Current string        `yaml:"current"`
	Active  string        `yaml:"active,omitempty"`
	Buckets []bucketStats `yaml:"buckets"`
}

type bucketStats struct {
	ID      string `yaml:"id"`
	Entries int    `yaml:"entries"`
	Active  bool   `yaml:"active"`
}

func runCacheStatus(cmd *cobra.Command, _ []string) error {
	if cacheFormat != "text" && cacheFormat != "yaml" {
		return fmt.Errorf("unknown format %q: must be text or yaml", cacheFormat)
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	status := cacheStatus{Backend: cfg.Cache.Backend, Current: a.worker.Bucket().String()}
	active, hasActive, err := a.store.Active(ctx)
	if err != nil {
		return fmt.Errorf("reading active bucket: %w", err)
	}
	if hasActive {
		status.Active = active.String()
	}

	ids, err := a.store.Buckets(ctx)
	if err != nil {
		return fmt.Errorf("listing buckets: %w", err)
	}
	for _, id := range ids {
		b, err := a.store.Open(ctx, id)
		if err != nil {
			return err
		}
		keys, err := b.Keys(ctx)
		if err != nil {
			return fmt.Errorf("listing entries of %s: %w", id, err)
		}
		status.Buckets = append(status.Buckets, bucketStats{
			ID:      id.String(),
			Entries: len(keys),
			Active:  hasActive && id == active,
		})
	}

	out := cmd.OutOrStdout()
	if cacheFormat == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(status); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(out, "Backend: %s\n", status.Backend)
	fmt.Fprintf(out, "Current: %s\n", status.Current)
	if len(status.Buckets) == 0 {
		fmt.Fprintln(out, "Buckets: (none)")
		return nil
	}
	fmt.Fprintln(out, "Buckets:")
	idLen := 0
	for _, b := range status.Buckets {
		idLen = max(idLen, len(b.ID))
	}
	for _, b := range status.Buckets {
		marker := " "
		if b.Active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-*s  %d entries\n", marker, idLen, b.ID, b.Entries)
	}
	return nil
}

func runCacheInstall(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	report, err := a.worker.Start(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if report.Skipped {
		fmt.Fprintf(out, "%s is already active\n", report.Bucket)
		return nil
	}
	fmt.Fprintf(out, "Installed %s: %d shell assets, %d media cached, %d failed\n",
		report.Bucket, report.ShellCached, report.MediaCached, report.MediaFailed)
	if report.MediaErr != nil {
		fmt.Fprintf(out, "Media not cached: %v\n", report.MediaErr)
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ids, err := a.store.Buckets(ctx)
	if err != nil {
		return fmt.Errorf("listing buckets: %w", err)
	}
	deleted := 0
	for _, id := range ids {
		ok, err := a.store.Delete(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting bucket %s: %w", id, err)
		}
		if ok {
			deleted++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d bucket(s)\n", deleted)
	return nil
}
