package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sorcerai/storm-mcp/internal/config"
	"github.com/sorcerai/storm-mcp/internal/store"
)

var exportPath string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded runs as zstd-compressed JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runExport(cmd, cfg.Store.Path, exportPath)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportPath, "file", "f", "", "output file (.jsonl.zst)")
	exportCmd.MarkFlagRequired("file")
}

func runExport(cmd *cobra.Command, dbPath, outputPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	db, err := store.New(config.StoreConfig{Path: dbPath})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	n, err := db.Export(f)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	info, _ := os.Stat(outputPath)
	size := int64(0)
	if info != nil {
		size = info.Size()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Export complete: %d runs, %s\n", n, formatSize(size))
	return nil
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
