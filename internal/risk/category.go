package risk

import (
	"strings"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// documentTypes maps normalized document_type hints, Italian and English,
// to document categories.
var documentTypes = map[string]domain.DocumentCategory{
	"bank":           domain.DocumentBank,
	"banca":          domain.DocumentBank,
	"bank_statement": domain.DocumentBank,
	"estratto_conto": domain.DocumentBank,
	"conto_corrente": domain.DocumentBank,

	"condominium":     domain.DocumentCondominium,
	"condominio":      domain.DocumentCondominium,
	"rendiconto":      domain.DocumentCondominium,
	"condo_statement": domain.DocumentCondominium,

	"work":       domain.DocumentWork,
	"lavoro":     domain.DocumentWork,
	"payslip":    domain.DocumentWork,
	"busta_paga": domain.DocumentWork,
	"cedolino":   domain.DocumentWork,

	"auto":       domain.DocumentAutomotive,
	"automotive": domain.DocumentAutomotive,
	"car":        domain.DocumentAutomotive,
	"veicolo":    domain.DocumentAutomotive,
	"libretto":   domain.DocumentAutomotive,

	"flight":         domain.DocumentFlight,
	"volo":           domain.DocumentFlight,
	"voli":           domain.DocumentFlight,
	"boarding_pass":  domain.DocumentFlight,
	"carta_imbarco":  domain.DocumentFlight,
	"flight_booking": domain.DocumentFlight,

	"ecommerce":  domain.DocumentEcommerce,
	"e_commerce": domain.DocumentEcommerce,
	"order":      domain.DocumentEcommerce,
	"ordine":     domain.DocumentEcommerce,
	"acquisti":   domain.DocumentEcommerce,

	"insurance":     domain.DocumentInsurance,
	"assicurazione": domain.DocumentInsurance,
	"assicurazioni": domain.DocumentInsurance,
	"polizza":       domain.DocumentInsurance,
	"policy":        domain.DocumentInsurance,

	"warranty": domain.DocumentWarranty,
	"garanzia": domain.DocumentWarranty,
	"garanzie": domain.DocumentWarranty,

	"telecom":             domain.DocumentTelecom,
	"telefonia":           domain.DocumentTelecom,
	"phone_bill":          domain.DocumentTelecom,
	"bolletta_telefonica": domain.DocumentTelecom,

	"energy":        domain.DocumentEnergy,
	"energia":       domain.DocumentEnergy,
	"utility_bill":  domain.DocumentEnergy,
	"bolletta_luce": domain.DocumentEnergy,
	"bolletta_gas":  domain.DocumentEnergy,

	"transport": domain.DocumentTransport,
	"trasporti": domain.DocumentTransport,
	"train":     domain.DocumentTransport,
	"treno":     domain.DocumentTransport,

	"tech":       domain.DocumentTech,
	"tecnologia": domain.DocumentTech,
}

// DocumentCategoryOf returns the catalog category a parsed document is filed
// under. The analysis variant wins (bank, condominium, work, auto); otherwise
// the document_type hint is looked up; otherwise other.
func DocumentCategoryOf(a *domain.DocumentAnalysis) domain.DocumentCategory {
	if a == nil {
		return domain.DocumentOther
	}
	switch {
	case a.Bank != nil:
		return domain.DocumentBank
	case a.Condominium != nil:
		return domain.DocumentCondominium
	case a.Work != nil:
		return domain.DocumentWork
	case a.Auto != nil:
		return domain.DocumentAutomotive
	}
	if c, ok := documentTypes[normalizeType(a.DocumentType)]; ok {
		return c
	}
	return domain.DocumentOther
}

func normalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
