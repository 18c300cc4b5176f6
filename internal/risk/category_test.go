package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rimborsami/rimborsami/internal/domain"
)

func TestDocumentCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.DocumentCategory
	}{
		{"bank variant", `{"bank_analysis": {}}`, domain.DocumentBank},
		{"bank beats condominium", `{"bank_analysis": {}, "condominium_analysis": {}}`, domain.DocumentBank},
		{"condominium variant", `{"condominium_analysis": {"irregularities": []}}`, domain.DocumentCondominium},
		{"work beats auto", `{"work_analysis": {}, "auto_analysis": {}}`, domain.DocumentWork},
		{"auto variant", `{"auto_analysis": {}}`, domain.DocumentAutomotive},
		{"variant beats hint", `{"document_type": "volo", "bank_analysis": {}}`, domain.DocumentBank},
		{"italian hint", `{"document_type": "Bolletta Luce"}`, domain.DocumentEnergy},
		{"english hint", `{"document_type": "boarding-pass"}`, domain.DocumentFlight},
		{"payslip hint", `{"document_type": "busta_paga"}`, domain.DocumentWork},
		{"unknown hint", `{"document_type": "recipe"}`, domain.DocumentOther},
		{"no signal", `{"potential_issues": ["x"]}`, domain.DocumentOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentCategoryOf(parse(t, tt.raw)))
		})
	}
}

func TestDocumentCategoryOfNil(t *testing.T) {
	c := DocumentCategoryOf(nil)
	assert.Equal(t, domain.DocumentOther, c)
	assert.Equal(t, "Altro", c.Label())
}
