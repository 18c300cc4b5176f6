package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the scoring rule table",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [file.yaml]",
	Short: "Validate a rule table (default: configured or embedded table)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Rules.Path
		if len(args) == 1 {
			path = args[0]
		}

		table, err := loadTable(path)
		if err != nil {
			return err
		}
		engine, err := rules.NewEngine()
		if err != nil {
			return err
		}
		if err := engine.Validate(table); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		source := path
		if source == "" {
			source = "embedded"
		}
		fmt.Fprintf(out, "rule table %s (version %s) is valid\n", source, table.Version)
		for _, cr := range table.Categories {
			fmt.Fprintf(out, "  %-14s %2d rules  %2d questions%s\n",
				cr.Category, len(cr.Rules), questionCount(cr), amountNote(cr))
		}
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}

func questionCount(cr domain.CategoryRules) int {
	seen := make(map[string]struct{}, len(cr.Rules))
	for _, r := range cr.Rules {
		seen[r.Question] = struct{}{}
	}
	return len(seen)
}

func amountNote(cr domain.CategoryRules) string {
	if cr.Amount == "" {
		return ""
	}
	return "  amount: " + cr.Amount
}
