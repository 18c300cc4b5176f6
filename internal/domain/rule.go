package domain

// CategoryRules is one category block of the scoring rule table.
type CategoryRules struct {
	Category Category `json:"category" yaml:"category"`

	// Applies is a CEL predicate over `answers` (map<string,string>) and
	// `points` (int, the category total) deciding whether the category applies.
	Applies string `json:"applies" yaml:"applies"`

	// Amount is an optional CEL expression returning int or double: a
	// category-specific literal estimate that overrides the catalog midpoint.
	Amount string `json:"amount,omitempty" yaml:"amount,omitempty"`

	Rules []PointRule `json:"rules" yaml:"rules"`
}

// PointRule awards Points when answers[Question] == Answer.
type PointRule struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
	Points   int    `json:"points" yaml:"points"`
}

// RuleTable is the declarative scoring table, ordered by category.
type RuleTable struct {
	Version    string          `json:"version" yaml:"version"`
	Categories []CategoryRules `json:"categories" yaml:"categories"`
}
