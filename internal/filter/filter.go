// Package filter selects the backend query for a severity facet. It never
// filters locally: each facet is a fresh round trip and the returned order is
// kept as received.
package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukerupert/cvewatch/internal/model"
)

// Facet is a severity filter value for the recent-CVE view.
type Facet string

const FacetAll Facet = "ALL"

// Facets lists every selectable facet in display order.
var Facets = []Facet{
	FacetAll,
	Facet(model.SeverityCritical),
	Facet(model.SeverityHigh),
	Facet(model.SeverityMedium),
	Facet(model.SeverityLow),
}

// ParseFacet accepts any letter case. An empty string means ALL.
func ParseFacet(s string) (Facet, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == string(FacetAll) {
		return FacetAll, nil
	}
	sev, err := model.ParseSeverity(s)
	if err != nil {
		return "", &model.ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown facet %q", s)}
	}
	return Facet(sev), nil
}

// Source is the subset of the gateway the engine needs.
type Source interface {
	FetchRecentCves(ctx context.Context) ([]model.CveRecord, error)
	FetchCvesBySeverity(ctx context.Context, severity model.Severity) ([]model.CveRecord, error)
}

// Fetch issues exactly one request for the facet.
func Fetch(ctx context.Context, src Source, f Facet) ([]model.CveRecord, error) {
	if f == FacetAll {
		return src.FetchRecentCves(ctx)
	}
	sev := model.Severity(f)
	if !sev.Valid() {
		return nil, &model.ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown facet %q", f)}
	}
	return src.FetchCvesBySeverity(ctx, sev)
}
