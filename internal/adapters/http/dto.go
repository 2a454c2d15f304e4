package httpadapter

import (
	"strings"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// documentResponse adds the aggregated confidence (percent) and its band to
// the stored document.
type documentResponse struct {
	domain.Document
	AverageConfidence float64               `json:"average_confidence"`
	ConfidenceBand    domain.ConfidenceBand `json:"confidence_band"`
}

func newDocumentResponse(doc domain.Document) documentResponse {
	avg := domain.AverageConfidence(doc)
	return documentResponse{
		Document:          doc,
		AverageConfidence: avg,
		ConfidenceBand:    domain.ClassifyConfidence(avg),
	}
}

type documentListResponse struct {
	Documents []documentResponse `json:"documents"`
	Count     int                `json:"count"`
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

type playbookRequest struct {
	Name     string   `json:"name"`
	Rule     string   `json:"rule"`
	Category string   `json:"category"`
	Active   *bool    `json:"active"`
	Triggers []string `json:"triggers"`
	Actions  []string `json:"actions"`
}

// toDomain defaults new playbooks to active, as the console did.
func (p playbookRequest) toDomain() domain.Playbook {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return domain.Playbook{
		Name:     p.Name,
		Rule:     p.Rule,
		Category: strings.TrimSpace(p.Category),
		Active:   active,
		Triggers: p.Triggers,
		Actions:  p.Actions,
	}
}
