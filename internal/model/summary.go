package model

import "fmt"

type DailySummary struct {
	ID            string      `json:"id"`
	Date          Timestamp   `json:"date"`
	TotalCves     int         `json:"total_cves"`
	CriticalCount int         `json:"critical_count"`
	HighCount     int         `json:"high_count"`
	MediumCount   int         `json:"medium_count"`
	LowCount      int         `json:"low_count"`
	TopThreats    []CveRecord `json:"top_threats,omitempty"`
	SummaryText   string      `json:"summary_text"`
	CreatedAt     Timestamp   `json:"created_at"`
}

// IsEmpty reports whether the backend had no summary to return. The latest
// summary endpoint answers with an object lacking an id in that case.
func (d *DailySummary) IsEmpty() bool {
	return d.ID == ""
}

func (d *DailySummary) Validate() error {
	if d.IsEmpty() {
		return nil
	}
	for field, n := range map[string]int{
		"total_cves":     d.TotalCves,
		"critical_count": d.CriticalCount,
		"high_count":     d.HighCount,
		"medium_count":   d.MediumCount,
		"low_count":      d.LowCount,
	} {
		if n < 0 {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("negative count %d", n)}
		}
	}
	for i := range d.TopThreats {
		if err := d.TopThreats[i].Validate(); err != nil {
			return fmt.Errorf("top_threats[%d]: %w", i, err)
		}
	}
	return nil
}

type ScrapeState string

const (
	ScrapePending    ScrapeState = "pending"
	ScrapeCompleted  ScrapeState = "completed"
	ScrapeError      ScrapeState = "error"
	ScrapeNotStarted ScrapeState = "not_started"
)

type ScrapeStatus struct {
	Status       ScrapeState `json:"status"`
	LastRun      Timestamp   `json:"last_run"`
	NextRun      Timestamp   `json:"next_run"`
	ItemsScraped int         `json:"items_scraped"`
	Errors       []string    `json:"errors,omitempty"`
	Message      string      `json:"message,omitempty"`
}

func (s *ScrapeStatus) Validate() error {
	switch s.Status {
	case ScrapePending, ScrapeCompleted, ScrapeError, ScrapeNotStarted:
	default:
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s.Status)}
	}
	if s.ItemsScraped < 0 {
		return &ValidationError{Field: "items_scraped", Reason: "negative"}
	}
	return nil
}
