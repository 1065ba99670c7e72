package main

import (
	"strings"

	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Flag defective poems in the raw store",
	Long: `Run the data cleaning pass over the raw corpus and flag defective
poems via data_status instead of deleting them:

  missing_chars  text contains lacuna placeholders (□ / ■)
  empty          no usable text at all
  disputed       text carries alternate-reading markers (一作)

Flagged poems are excluded from annotation runs. The default is a dry
run; pass --write to persist the flags. Rules are checked in the order
above and the first match wins.`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().Bool("write", false, "actually update data_status")
}

// missingCharMarkers are the placeholder glyphs corpus digitizers use
// for illegible characters
var missingCharMarkers = []string{"□", "■"}

// classifyPoem returns the data_status a poem should carry, or "" if it
// is fine as active
func classifyPoem(p *store.Poem) string {
	for _, marker := range missingCharMarkers {
		if strings.Contains(p.FullText, marker) || strings.Contains(p.Title, marker) {
			return store.DataStatusMissingChars
		}
	}

	if strings.TrimSpace(p.FullText) == "" {
		return store.DataStatusEmpty
	}
	empty := true
	for _, para := range p.Paragraphs {
		if strings.TrimSpace(para) != "" {
			empty = false
			break
		}
	}
	if empty {
		return store.DataStatusEmpty
	}

	if strings.Contains(p.FullText, "一作") {
		return store.DataStatusDisputed
	}
	return ""
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ss, err := openDataset(cfg, false)
	if err != nil {
		return err
	}
	defer ss.Close()

	poems, err := ss.Raw.GetPoems(store.PoemQuery{IncludeInactive: true})
	if err != nil {
		return err
	}

	write, _ := cmd.Flags().GetBool("write")
	flagged := make(map[string]int)
	updated := 0

	for _, p := range poems {
		status := classifyPoem(p)
		if status == "" || status == p.DataStatus {
			continue
		}
		flagged[status]++
		util.DebugLog("Poem %d (%s): %s -> %s", p.ID, p.Title, p.DataStatus, status)

		if write {
			if err := ss.Raw.UpdateDataStatus(p.ID, status); err != nil {
				return err
			}
			updated++
		}
	}

	total := 0
	for status, n := range flagged {
		util.InfoLog("  %s: %d poems", status, n)
		total += n
	}
	if total == 0 {
		util.SuccessLog("Corpus is clean: %d poems checked, nothing to flag", len(poems))
		return nil
	}

	if write {
		util.SuccessLog("Cleaning pass updated %d of %d poems", updated, len(poems))
	} else {
		util.InfoLog("DRY RUN: %d poems would be flagged; re-run with --write to persist", total)
	}
	return nil
}
