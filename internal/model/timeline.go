package model

import "fmt"

type TimelineEntry struct {
	ID               string      `json:"id"`
	Date             Timestamp   `json:"date"`
	TotalNewCount    int         `json:"total_new_count"`
	NewCriticalCount int         `json:"new_critical_count"`
	NewHighCount     int         `json:"new_high_count"`
	HighSeverityCves []CveRecord `json:"high_severity_cves"`
}

func (e *TimelineEntry) Validate() error {
	if e.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "missing"}
	}
	if e.TotalNewCount < 0 || e.NewCriticalCount < 0 || e.NewHighCount < 0 {
		return &ValidationError{Field: "counts", Reason: "negative"}
	}
	for i := range e.HighSeverityCves {
		if err := e.HighSeverityCves[i].Validate(); err != nil {
			return fmt.Errorf("high_severity_cves[%d]: %w", i, err)
		}
	}
	return nil
}

type TimelineStats struct {
	TotalCriticalCves     int `json:"total_critical_cves"`
	TotalHighCves         int `json:"total_high_cves"`
	TotalHighSeverityCves int `json:"total_high_severity_cves"`
	RecentEntries7Days    int `json:"recent_entries_7_days"`
}

func (s *TimelineStats) Validate() error {
	if s.TotalCriticalCves < 0 || s.TotalHighCves < 0 || s.TotalHighSeverityCves < 0 || s.RecentEntries7Days < 0 {
		return &ValidationError{Field: "stats", Reason: "negative count"}
	}
	return nil
}
