package main

import (
	"fmt"
	"os"

	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the configuration and stores",
	Long: `Run diagnostic checks to ensure pac can operate correctly.

This command checks:
- SQLite availability
- Each store file of the selected dataset (accessibility, schema,
  integrity, row counts)
- Model configuration (API key environment variables)
- Log directory writability

Use this command to troubleshoot issues before running annotations.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== pac Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{checkSQLite()}

	cfg, err := loadConfig()
	if err != nil {
		results = append(results, checkResult{
			name: "Configuration", error: true, message: err.Error(),
		})
		printCheckResults(results)
		return fmt.Errorf("system diagnostics failed")
	}
	results = append(results, checkResult{
		name: "Configuration",
		message: fmt.Sprintf("%d datasets, %d models",
			len(cfg.Datasets), len(cfg.Models)),
	})

	if paths, err := cfg.Dataset(viper.GetString("dataset")); err != nil {
		results = append(results, checkResult{
			name: "Dataset", error: true, message: err.Error(),
		})
	} else {
		results = append(results,
			checkStore("Raw store", paths.Raw, store.KindRaw),
			checkStore("Annotation store", paths.Annotation, store.KindAnnotation),
			checkStore("Taxonomy store", paths.Taxonomy, store.KindTaxonomy),
		)
	}

	for _, id := range cfg.ModelIdentifiers() {
		m := cfg.Models[id]
		results = append(results, checkModelKey(id, m.APIKeyEnv))
	}

	results = append(results, checkLogDir(cfg.LogDir))

	hasErrors := printCheckResults(results)
	if hasErrors {
		return fmt.Errorf("system diagnostics failed")
	}
	return nil
}

func printCheckResults(results []checkResult) bool {
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Resolve errors before running pac.")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed.")
	}
	return hasErrors
}

// checkSQLite verifies the embedded SQLite library
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}
	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkStore verifies one store file: accessibility, schema, integrity
func checkStore(name, path string, kind store.Kind) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    name,
				warning: true,
				message: fmt.Sprintf("%s does not exist (run 'pac init-db')", path),
			}
		}
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}
	if !info.Mode().IsRegular() {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", path),
		}
	}

	s, err := store.Open(path, kind)
	if err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", path, err),
		}
	}
	defer s.Close()

	if err := s.CheckIntegrity(); err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	detail := ""
	switch kind {
	case store.KindRaw:
		if counts, err := s.CountPoems(); err == nil {
			total := 0
			for _, n := range counts {
				total += n
			}
			detail = fmt.Sprintf(", %d poems", total)
		}
	case store.KindAnnotation:
		if counts, err := s.ModelStatusCounts(); err == nil {
			detail = fmt.Sprintf(", %d models", len(counts))
		}
	case store.KindTaxonomy:
		if counts, err := s.CountCategories(); err == nil {
			total := 0
			for _, n := range counts {
				total += n
			}
			if total == 0 {
				return checkResult{
					name:    name,
					warning: true,
					message: fmt.Sprintf("%s has no categories (run 'pac init-db')", path),
				}
			}
			detail = fmt.Sprintf(", %d categories", total)
		}
	}

	return checkResult{
		name:    name,
		message: fmt.Sprintf("%s (%s%s)", path, util.FormatBytes(info.Size()), detail),
	}
}

// checkModelKey verifies the API key environment variable is set
func checkModelKey(model, keyEnv string) checkResult {
	name := fmt.Sprintf("Model %s", model)
	if keyEnv == "" {
		return checkResult{
			name:    name,
			warning: true,
			message: "no api_key_env configured",
		}
	}
	if os.Getenv(keyEnv) == "" {
		return checkResult{
			name:    name,
			warning: true,
			message: fmt.Sprintf("%s is not set", keyEnv),
		}
	}
	return checkResult{
		name:    name,
		message: fmt.Sprintf("%s set", keyEnv),
	}
}

// checkLogDir verifies the event log directory is writable
func checkLogDir(dir string) checkResult {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return checkResult{
			name:    "Log directory",
			error:   true,
			message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}
	testFile := dir + "/.pac_write_test"
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Log directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", dir, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Log directory",
		message: fmt.Sprintf("%s (writable)", dir),
	}
}
