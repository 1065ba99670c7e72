package main

import (
	"fmt"
	"os"

	"github.com/minghe/poetry-annotator/internal/export"
	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export annotations as JSONL or CSV",
	Long: `Export the dataset's annotations. JSONL carries one record per
(poem, model) including failures; CSV flattens completed annotations to
one row per sentence for analysis tools.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("format", "jsonl", "output format: jsonl or csv")
	exportCmd.Flags().StringP("model", "m", "", "limit export to one model")
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format %q (jsonl or csv)", format)
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

	model, _ := cmd.Flags().GetString("model")
	records, err := export.Collect(ss, model)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if len(records) == 0 {
		util.WarnLog("Nothing to export")
		return nil
	}

	out := os.Stdout
	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "csv":
		err = export.WriteCSV(out, records)
	default:
		err = export.WriteJSONL(out, records)
	}
	if err != nil {
		return err
	}

	if outputPath != "" {
		util.SuccessLog("Exported %d records to %s", len(records), outputPath)
	}
	return nil
}
