package harvest

import "fmt"

// Artifact type names. These are the authoritative values stored in the
// harvest log; every harvest kind and report uses the same strings.
const (
	TypeSection5HTML          = "section5_html"
	TypeSection5PDF           = "section5_pdf"
	TypeSubstantialRiskHTML   = "substantial_risk_html"
	TypeSubstantialRiskPDF    = "substantial_risk_pdf"
	TypeNewChemicalNoticeHTML = "new_chemical_notice_html"
	TypeNewChemicalNoticePDF  = "new_chemical_notice_pdf"
	TypeSNURHTML              = "snur_html"
)

// Policy names the artifact types one harvest kind tracks. PageType is the
// rendered report capture; FileType is the supporting file bundle, empty for
// kinds that queue their files on the download plan instead.
type Policy struct {
	Kind     string
	PageType string
	FileType string
}

// Types lists the artifact types this policy tracks, page first.
func (p Policy) Types() []string {
	if p.FileType == "" {
		return []string{p.PageType}
	}
	return []string{p.PageType, p.FileType}
}

var policies = map[string]Policy{
	"section5": {
		Kind:     "section5",
		PageType: TypeSection5HTML,
		FileType: TypeSection5PDF,
	},
	"substantial_risk": {
		Kind:     "substantial_risk",
		PageType: TypeSubstantialRiskHTML,
		FileType: TypeSubstantialRiskPDF,
	},
	"new_chemical_notice": {
		Kind:     "new_chemical_notice",
		PageType: TypeNewChemicalNoticeHTML,
		FileType: TypeNewChemicalNoticePDF,
	},
	// SNURs download nothing directly; supporting files go on the plan.
	"snur": {
		Kind:     "snur",
		PageType: TypeSNURHTML,
	},
}

// PolicyFor returns the artifact policy for a harvest kind.
func PolicyFor(kind string) (Policy, error) {
	p, ok := policies[kind]
	if !ok {
		return Policy{}, fmt.Errorf("unknown harvest kind %q", kind)
	}
	return p, nil
}
