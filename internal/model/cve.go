package model

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Severities lists the enumerated levels from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// ParseSeverity accepts any letter case.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", &ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", s)}
	}
	return sev, nil
}

type CveRecord struct {
	ID            string     `json:"id"`
	CveID         string     `json:"cve_id,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Severity      Severity   `json:"severity,omitempty"`
	Score         *float64   `json:"score,omitempty"`
	Source        string     `json:"source"`
	URL           string     `json:"url"`
	PublishedDate *Timestamp `json:"published_date,omitempty"`
	ScrapedAt     Timestamp  `json:"scraped_at"`
}

// Validate checks the enumerations and ranges only. Consistency between
// score and severity is the backend's contract.
func (c *CveRecord) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Reason: "missing"}
	}
	if c.Severity != "" && !c.Severity.Valid() {
		return &ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", c.Severity)}
	}
	if c.Score != nil && (*c.Score < 0 || *c.Score > 10) {
		return &ValidationError{Field: "score", Reason: fmt.Sprintf("%.1f out of range", *c.Score)}
	}
	return nil
}

// HighSeverity reports whether the record scores at least 7.0.
func (c *CveRecord) HighSeverity() bool {
	return c.Score != nil && *c.Score >= 7.0
}
