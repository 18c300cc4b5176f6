package domain

import "strings"

// Category is a refund domain. It is the single enumeration shared by the
// scorer, the matcher, the catalog and the document classifier.
type Category string

const (
	CategoryFlight      Category = "flight"
	CategoryEcommerce   Category = "ecommerce"
	CategoryBank        Category = "bank"
	CategoryInsurance   Category = "insurance"
	CategoryWarranty    Category = "warranty"
	CategoryTelecom     Category = "telecom"
	CategoryEnergy      Category = "energy"
	CategoryTransport   Category = "transport"
	CategoryAutomotive  Category = "automotive"
	CategoryTech        Category = "tech"
	CategoryClassAction Category = "class_action"
	CategoryOther       Category = "other"
)

// scoredCategories is the fixed evaluation order of the quiz scorer.
var scoredCategories = []Category{
	CategoryFlight,
	CategoryEcommerce,
	CategoryBank,
	CategoryInsurance,
	CategoryWarranty,
	CategoryTelecom,
	CategoryEnergy,
	CategoryTransport,
	CategoryAutomotive,
	CategoryTech,
	CategoryClassAction,
}

// ScoredCategories returns the categories that carry quiz rules, in fixed order.
// "other" is never scored.
func ScoredCategories() []Category {
	out := make([]Category, len(scoredCategories))
	copy(out, scoredCategories)
	return out
}

// ParseCategory maps a label to a known category. Unknown labels fall back to
// CategoryOther rather than failing.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.Known() {
		return c
	}
	return CategoryOther
}

// Known reports whether c is one of the canonical categories (including other).
func (c Category) Known() bool {
	if c == CategoryOther {
		return true
	}
	for _, sc := range scoredCategories {
		if c == sc {
			return true
		}
	}
	return false
}

// DocumentCategory is the label a parsed document is filed under in the
// catalog UI. It extends Category with document-only buckets.
type DocumentCategory string

const (
	DocumentBank        DocumentCategory = "bank"
	DocumentCondominium DocumentCategory = "condominium"
	DocumentWork        DocumentCategory = "work"
	DocumentAutomotive  DocumentCategory = "automotive"
	DocumentFlight      DocumentCategory = "flight"
	DocumentEcommerce   DocumentCategory = "ecommerce"
	DocumentInsurance   DocumentCategory = "insurance"
	DocumentWarranty    DocumentCategory = "warranty"
	DocumentTelecom     DocumentCategory = "telecom"
	DocumentEnergy      DocumentCategory = "energy"
	DocumentTransport   DocumentCategory = "transport"
	DocumentTech        DocumentCategory = "tech"
	DocumentOther       DocumentCategory = "other"
)

var documentLabels = map[DocumentCategory]string{
	DocumentBank:        "Banca",
	DocumentCondominium: "Condominio",
	DocumentWork:        "Lavoro",
	DocumentAutomotive:  "Auto",
	DocumentFlight:      "Voli",
	DocumentEcommerce:   "Acquisti online",
	DocumentInsurance:   "Assicurazioni",
	DocumentWarranty:    "Garanzie",
	DocumentTelecom:     "Telefonia",
	DocumentEnergy:      "Energia",
	DocumentTransport:   "Trasporti",
	DocumentTech:        "Tecnologia",
	DocumentOther:       "Altro",
}

// Label returns the Italian display label. Unknown values render as "Altro".
func (d DocumentCategory) Label() string {
	if l, ok := documentLabels[d]; ok {
		return l
	}
	return documentLabels[DocumentOther]
}
