package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rimborsami/rimborsami/internal/api"
	"github.com/rimborsami/rimborsami/internal/catalog"
	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/pipeline"
)

var (
	scoreAnswers string
	scoreCatalog string
	scoreRules   string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a quiz submission and match it against a catalog file",
	Long: `score reads a JSON object of quiz answers (question id -> option value),
scores every category and, when --catalog is given, matches the applying
categories against the opportunities in the catalog file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var form map[string]any
		if err := readJSON(scoreAnswers, &form); err != nil {
			return fmt.Errorf("read answers: %w", err)
		}

		var defs []domain.OpportunityDefinition
		if scoreCatalog != "" {
			loaded, err := catalog.LoadFile(scoreCatalog)
			if err != nil {
				return err
			}
			defs = loaded
		}

		engine, err := loadEngine(firstSet(scoreRules, cfg.Rules.Path))
		if err != nil {
			return err
		}

		processor := pipeline.NewProcessor(engine, pipeline.WithLogger(slog.Default()))
		eval := processor.ProcessQuiz(contextOf(cmd), &pipeline.QuizInput{
			UserID:  "cli",
			Form:    form,
			Catalog: defs,
		})
		return writePretty(cmd.OutOrStdout(), api.NewQuizResponse(eval))
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreAnswers, "answers", "", "JSON file with the quiz answers")
	scoreCmd.Flags().StringVar(&scoreCatalog, "catalog", "", "YAML catalog file to match against")
	scoreCmd.Flags().StringVar(&scoreRules, "rules", "", "YAML rule table (default: configured or embedded table)")
	_ = scoreCmd.MarkFlagRequired("answers")
	rootCmd.AddCommand(scoreCmd)
}

// readJSON decodes the JSON file at path into v. "-" reads stdin.
func readJSON(path string, v any) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return json.NewDecoder(r).Decode(v)
}

func writePretty(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
