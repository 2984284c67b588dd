/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valpere/dubtran/internal/batch"
)

var (
	inputFile     string
	outputFile    string
	csvFile       string
	xlsxFile      string
	showPrompt    bool
	checkLanguage bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a JSON batch of English texts to Hinglish",
	Long: `Translate a JSON array of {"text": "..."} items with a single provider
request and write the translations, in the same order, to the output file.

Lines the model leaves out come back as
"[Translation missing for: <original>]" so the output always has one item
per input item. A count mismatch is reported as a warning.

Examples:
  dubtran translate -i lines.json -o hinglish.json
  dubtran translate -i lines.json -o out.json --csv out.csv --xlsx out.xlsx
  dubtran translate -i lines.json --show-prompt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := batch.Load(inputFile)
		if err != nil {
			return err
		}

		if showPrompt {
			builder, err := buildPrompt(cfg)
			if err != nil {
				return err
			}
			text, err := builder.Build(batch.Texts(items))
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		}

		if outputFile == "" {
			return fmt.Errorf("output file is required")
		}
		if sameFile(inputFile, outputFile) {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		ctx := cmd.Context()

		db, err := openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		p, err := buildPipeline(ctx, cfg, db, checkLanguage, logger)
		if err != nil {
			return err
		}

		res, err := p.Run(ctx, items)
		if err != nil {
			return fmt.Errorf("translation failed: %w", err)
		}

		if err := batch.Save(outputFile, res.Outputs); err != nil {
			return err
		}

		rows := batch.Pair(res.Inputs, res.Outputs)
		for _, path := range []string{csvFile, xlsxFile} {
			if path == "" {
				continue
			}
			if err := writeExport(path, rows); err != nil {
				return err
			}
			fmt.Printf("Exported %s\n", path)
		}

		if res.Report.Mismatch() {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", res.Report)
		}
		if len(res.MarkupLost) > 0 {
			fmt.Fprintf(os.Stderr, "Warning: translations at positions %v dropped protected markup\n", res.MarkupLost)
		}
		for _, f := range res.Findings {
			fmt.Fprintf(os.Stderr, "Warning: item %d does not look like English (detected %s, %s)\n", f.Position, f.Detected, f.Code)
		}

		source := res.Provider
		if res.Cached {
			source += ", from cache"
		}
		fmt.Printf("Translated %d items with %s in %.2fs\n", len(res.Outputs), source, res.Elapsed.Seconds())
		fmt.Printf("Output written to %s\n", outputFile)
		fmt.Printf("Batch ID: %s\n", res.BatchID)
		return nil
	},
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input JSON file (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output JSON file (required unless --show-prompt)")
	translateCmd.Flags().StringVar(&csvFile, "csv", "", "Also export position/original/translated as CSV")
	translateCmd.Flags().StringVar(&xlsxFile, "xlsx", "", "Also export position/original/translated as XLSX")
	translateCmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "Print the rendered prompt and exit without calling the provider")
	translateCmd.Flags().BoolVar(&checkLanguage, "check-language", false, "Warn about input items that do not look like English")

	translateCmd.MarkFlagRequired("input")
}
