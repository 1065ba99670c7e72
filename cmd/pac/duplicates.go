package main

import (
	"fmt"

	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
)

var duplicatesCmd = &cobra.Command{
	Use:   "find-duplicates",
	Short: "List groups of poems with identical normalized text",
	Long: `Group poems whose full text is identical after whitespace stripping
and Unicode normalization. Classical corpora carry many reprints of the
same poem under different IDs; these groups show which annotations are
effectively duplicates (see also 'status --dedup').`,
	RunE: runFindDuplicates,
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)
}

func runFindDuplicates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ss, err := openDataset(cfg, false)
	if err != nil {
		return err
	}
	defer ss.Close()

	groups, err := ss.Raw.FindDuplicatePoems()
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		util.SuccessLog("No duplicate poems found")
		return nil
	}

	duplicateRows := 0
	for _, g := range groups {
		duplicateRows += len(g.PoemIDs) - 1
		first, err := ss.Raw.GetPoemByID(g.PoemIDs[0])
		if err != nil {
			return err
		}
		title := "?"
		if first != nil {
			title = fmt.Sprintf("%s (%s)", first.Title, first.Author)
		}
		fmt.Printf("%s  ids=%v\n", title, g.PoemIDs)
	}

	util.InfoLog("%d duplicate groups, %d redundant poems", len(groups), duplicateRows)
	return nil
}
