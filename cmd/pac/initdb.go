package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/minghe/poetry-annotator/internal/taxonomy"
	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the dataset stores and seed the taxonomy",
	Long: `Create the three store files for the selected dataset (raw corpus,
annotations, taxonomy) and seed the taxonomy store from the configured
YAML category tree.

Safe to re-run: existing data is kept and the taxonomy is upserted.
Use --clear to delete the store files and start over.`,
	RunE: runInitDB,
}

func init() {
	rootCmd.AddCommand(initDBCmd)

	initDBCmd.Flags().Bool("clear", false, "delete existing store files first")
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths, err := cfg.Dataset(viper.GetString("dataset"))
	if err != nil {
		return err
	}

	clear, _ := cmd.Flags().GetBool("clear")
	if clear {
		for _, p := range []string{paths.Raw, paths.Annotation, paths.Taxonomy} {
			for _, f := range []string{p, p + "-shm", p + "-wal"} {
				if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to remove %s: %w", f, err)
				}
			}
		}
		util.InfoLog("Cleared existing store files")
	}

	if err := os.MkdirAll(filepath.Dir(paths.Raw), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	ss, err := openDataset(cfg, true)
	if err != nil {
		return err
	}
	defer ss.Close()

	util.SuccessLog("Stores ready: %s, %s, %s", paths.Raw, paths.Annotation, paths.Taxonomy)

	categories, err := taxonomy.LoadFile(cfg.TaxonomyFile)
	if err != nil {
		return fmt.Errorf("failed to load taxonomy %s: %w", cfg.TaxonomyFile, err)
	}
	if err := ss.Taxonomy.SeedCategories(categories); err != nil {
		return fmt.Errorf("failed to seed taxonomy: %w", err)
	}

	counts, err := ss.Taxonomy.CountCategories()
	if err != nil {
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	util.SuccessLog("Taxonomy seeded: %d categories from %s", total, cfg.TaxonomyFile)
	for _, ct := range taxonomy.CategoryTypes() {
		if n := counts[ct]; n > 0 {
			util.InfoLog("  %s: %d", ct, n)
		}
	}

	return nil
}
