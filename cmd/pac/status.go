package main

import (
	"fmt"

	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show annotation statistics for the dataset",
	Long: `Show per-model annotation statistics for the selected dataset:
completed and failed counts, and with --dedup the number of completed
annotations over unique poem texts (duplicate poems collapse into one).`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringP("model", "m", "", "limit output to one model")
	statusCmd.Flags().Bool("dedup", false, "also count completions over unique poem texts")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ss, err := openDataset(cfg, false)
	if err != nil {
		return err
	}
	defer ss.Close()

	poemCounts, err := ss.Raw.CountPoems()
	if err != nil {
		return err
	}
	totalPoems := 0
	for _, n := range poemCounts {
		totalPoems += n
	}
	authorCount, err := ss.Raw.CountAuthors()
	if err != nil {
		return err
	}

	util.InfoLog("Corpus: %d poems (%d active), %d authors",
		totalPoems, poemCounts["active"], authorCount)
	for status, n := range poemCounts {
		if status != "active" && n > 0 {
			util.InfoLog("  %s: %d", status, n)
		}
	}

	dedup, _ := cmd.Flags().GetBool("dedup")
	stats, err := ss.GetStatistics(dedup)
	if err != nil {
		return err
	}

	modelFilter, _ := cmd.Flags().GetString("model")

	if len(stats) == 0 {
		util.InfoLog("No annotations yet")
		return nil
	}

	fmt.Println()
	shown := 0
	for _, s := range stats {
		if modelFilter != "" && s.Model != modelFilter {
			continue
		}
		shown++
		pct := 0.0
		if totalPoems > 0 {
			pct = float64(s.Completed) / float64(totalPoems) * 100
		}
		fmt.Printf("%-30s completed %6d (%.1f%%)  failed %5d", s.Model, s.Completed, pct, s.Failed)
		if dedup {
			fmt.Printf("  unique %6d", s.UniqueCompleted)
		}
		fmt.Println()
	}
	if shown == 0 && modelFilter != "" {
		util.WarnLog("No annotations for model %q", modelFilter)
	}

	return nil
}
