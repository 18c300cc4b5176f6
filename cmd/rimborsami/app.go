package main

import (
	"fmt"
	"log/slog"

	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/rules"
)

// loadEngine builds a scoring engine from the rule table at path, or from
// the embedded table when path is empty.
func loadEngine(path string) (*rules.Engine, error) {
	table, err := loadTable(path)
	if err != nil {
		return nil, err
	}
	engine, err := rules.NewEngine()
	if err != nil {
		return nil, err
	}
	if err := engine.Reload(table); err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	slog.Debug("rule engine initialized",
		"version", engine.Version(),
		"rules_count", engine.RulesCount(),
	)
	return engine, nil
}

func loadTable(path string) (*domain.RuleTable, error) {
	if path == "" {
		return rules.DefaultTable()
	}
	return rules.LoadTable(path)
}
