package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/pipeline"
)

var (
	assessDocument   string
	assessDocumentID string
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess the risk of a parsed document",
	RunE: func(cmd *cobra.Command, args []string) error {
		var analysis domain.DocumentAnalysis
		if err := readJSON(assessDocument, &analysis); err != nil {
			return fmt.Errorf("read document: %w", err)
		}

		// Document assessment never consults the rule table.
		processor := pipeline.NewProcessor(nil)
		eval := processor.ProcessDocument(contextOf(cmd), &pipeline.DocumentInput{
			UserID:     "cli",
			DocumentID: assessDocumentID,
			Analysis:   &analysis,
		})
		eval.Analysis = nil
		return writePretty(cmd.OutOrStdout(), eval)
	},
}

func init() {
	assessCmd.Flags().StringVar(&assessDocument, "document", "", "JSON file with the parsed document analysis")
	assessCmd.Flags().StringVar(&assessDocumentID, "document-id", "", "document id to stamp on the assessment")
	_ = assessCmd.MarkFlagRequired("document")
	rootCmd.AddCommand(assessCmd)
}
