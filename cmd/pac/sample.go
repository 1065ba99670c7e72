package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
)

var sampleCmd = &cobra.Command{
	Use:   "random-sample",
	Short: "Draw a uniform random sample of poems",
	Long: `Draw N poems uniformly without replacement from the raw store, for
manual review or building evaluation sets.

--exclude-annotated drops poems a given model has already completed;
--filter-missing-chars drops poems flagged with missing characters.`,
	RunE: runSample,
}

func init() {
	rootCmd.AddCommand(sampleCmd)

	sampleCmd.Flags().IntP("count", "n", 10, "number of poems to sample")
	sampleCmd.Flags().String("exclude-annotated", "", "exclude poems this model already completed")
	sampleCmd.Flags().Bool("filter-missing-chars", false, "exclude poems with missing characters")
	sampleCmd.Flags().StringP("output", "o", "", "write sample as JSON to this file (default stdout listing)")
}

type sampledPoem struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Paragraphs []string `json:"paragraphs"`
}

func runSample(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("count")
	if n <= 0 {
		return fmt.Errorf("sample size must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ss, err := openDataset(cfg, false)
	if err != nil {
		return err
	}
	defer ss.Close()

	excludeModel, _ := cmd.Flags().GetString("exclude-annotated")
	filterMissing, _ := cmd.Flags().GetBool("filter-missing-chars")

	poems, err := ss.RandomSample(store.SampleQuery{
		N:                  n,
		ExcludeModel:       excludeModel,
		FilterMissingChars: filterMissing,
	})
	if err != nil {
		return fmt.Errorf("sampling failed: %w", err)
	}
	if len(poems) < n {
		util.WarnLog("Only %d poems match the filters (asked for %d)", len(poems), n)
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		for _, p := range poems {
			fmt.Printf("%6d  %s (%s)\n", p.ID, p.Title, p.Author)
		}
		return nil
	}

	sample := make([]sampledPoem, len(poems))
	for i, p := range poems {
		sample[i] = sampledPoem{ID: p.ID, Title: p.Title, Author: p.Author, Paragraphs: p.Paragraphs}
	}
	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	util.SuccessLog("Wrote %d poems to %s", len(sample), outputPath)
	return nil
}
