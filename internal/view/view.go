// Package view projects a controller snapshot into the model the dashboard
// renders. It holds no state of its own.
package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/cvewatch/internal/filter"
	"github.com/dukerupert/cvewatch/internal/model"
	"github.com/dukerupert/cvewatch/internal/syncer"
)

// Dashboard is the renderable state of one viewer.
type Dashboard struct {
	SessionID string   `json:"session_id"`
	Syncing   bool     `json:"syncing"`
	Loading   bool     `json:"loading"`
	InFlight  []string `json:"in_flight"`
	Version   uint64   `json:"version"`

	Status    StatusCard    `json:"status"`
	Summary   *SummaryCard  `json:"summary,omitempty"`
	Facets    []FacetButton `json:"facets"`
	Cves      []CveRow      `json:"cves"`
	Stats     *StatsCard    `json:"stats,omitempty"`
	Timeline  []TimelineDay `json:"timeline"`
	Email     EmailPanel    `json:"email"`
	History   []HistoryRow  `json:"history"`
	LastVisit string        `json:"last_visit"`

	// Sections carries the load phase and last error of every slice.
	Sections map[string]Section `json:"sections"`
}

type Section struct {
	Phase string `json:"phase"`
	Error string `json:"error,omitempty"`
}

type StatusCard struct {
	Label        string   `json:"label"`
	Class        string   `json:"class"`
	LastRun      string   `json:"last_run"`
	NextRun      string   `json:"next_run"`
	ItemsScraped int      `json:"items_scraped"`
	Errors       []string `json:"errors,omitempty"`
}

type SummaryCard struct {
	Date     string   `json:"date"`
	Total    int      `json:"total"`
	Critical int      `json:"critical"`
	High     int      `json:"high"`
	Medium   int      `json:"medium"`
	Low      int      `json:"low"`
	Text     string   `json:"text"`
	Threats  []CveRow `json:"threats,omitempty"`
}

type FacetButton struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

type CveRow struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Severity     string `json:"severity"`
	Badge        string `json:"badge"`
	Score        string `json:"score"`
	HighSeverity bool   `json:"high_severity"`
	Source       string `json:"source"`
	URL          string `json:"url"`
	Published    string `json:"published"`
}

type StatsCard struct {
	Critical     int `json:"critical"`
	High         int `json:"high"`
	HighSeverity int `json:"high_severity"`
	RecentDays   int `json:"recent_days"`
}

type TimelineDay struct {
	Date     string   `json:"date"`
	Total    int      `json:"total"`
	Critical int      `json:"critical"`
	High     int      `json:"high"`
	Cves     []CveRow `json:"cves"`
}

type EmailPanel struct {
	Configured  bool            `json:"configured"`
	GmailUser   string          `json:"gmail_user"`
	Subscribers []SubscriberRow `json:"subscribers"`
}

type SubscriberRow struct {
	Email   string `json:"email"`
	AddedAt string `json:"added_at"`
	Active  bool   `json:"active"`
}

type HistoryRow struct {
	Date     string `json:"date"`
	Total    int    `json:"total"`
	Critical int    `json:"critical"`
	High     int    `json:"high"`
}

// Project builds the dashboard for a snapshot.
func Project(s syncer.Snapshot) Dashboard {
	d := Dashboard{
		SessionID: s.SessionID,
		Syncing:   s.IsSyncing,
		Loading:   s.Loading(),
		InFlight:  make([]string, 0, len(s.InFlight)),
		Version:   s.Version,
		Status:    projectStatus(s.ScrapeStatus),
		Facets:    projectFacets(s.SelectedSeverity),
		Cves:      projectCves(s.RecentCves.Value),
		Timeline:  make([]TimelineDay, 0, len(s.Timeline.Value)),
		History:   make([]HistoryRow, 0, len(s.SummaryHistory.Value)),
		LastVisit: projectLastVisit(s.LastVisit),
		Sections:  make(map[string]Section),
	}
	for _, a := range s.InFlight {
		d.InFlight = append(d.InFlight, string(a))
	}

	if sum := s.LatestSummary.Value; !sum.IsEmpty() {
		d.Summary = &SummaryCard{
			Date:     FormatDateTime(sum.Date),
			Total:    sum.TotalCves,
			Critical: sum.CriticalCount,
			High:     sum.HighCount,
			Medium:   sum.MediumCount,
			Low:      sum.LowCount,
			Text:     sum.SummaryText,
			Threats:  projectCves(sum.TopThreats),
		}
	}

	if s.TimelineStats.Phase != syncer.PhaseEmpty {
		st := s.TimelineStats.Value
		d.Stats = &StatsCard{
			Critical:     st.TotalCriticalCves,
			High:         st.TotalHighCves,
			HighSeverity: st.TotalHighSeverityCves,
			RecentDays:   st.RecentEntries7Days,
		}
	}

	for _, e := range s.Timeline.Value {
		d.Timeline = append(d.Timeline, TimelineDay{
			Date:     FormatDate(e.Date),
			Total:    e.TotalNewCount,
			Critical: e.NewCriticalCount,
			High:     e.NewHighCount,
			Cves:     projectCves(e.HighSeverityCves),
		})
	}

	cfg := s.EmailConfig.Value
	d.Email = EmailPanel{
		Configured:  cfg.Configured,
		GmailUser:   cfg.GmailUser,
		Subscribers: []SubscriberRow{},
	}
	if cfg.Configured {
		for _, sub := range s.Subscribers.Value {
			d.Email.Subscribers = append(d.Email.Subscribers, SubscriberRow{
				Email:   sub.Email,
				AddedAt: FormatDateTime(sub.AddedAt),
				Active:  sub.Active,
			})
		}
	}

	for _, h := range s.SummaryHistory.Value {
		d.History = append(d.History, HistoryRow{
			Date:     FormatDateTime(h.Date),
			Total:    h.TotalCves,
			Critical: h.CriticalCount,
			High:     h.HighCount,
		})
	}

	for name, p := range s.Phases() {
		d.Sections[name] = Section{Phase: p.String()}
	}
	for name, msg := range sliceErrors(s) {
		sec := d.Sections[name]
		sec.Error = msg
		d.Sections[name] = sec
	}
	return d
}

func sliceErrors(s syncer.Snapshot) map[string]string {
	errs := map[string]string{
		syncer.SliceLatestSummary:  s.LatestSummary.Error,
		syncer.SliceRecentCves:     s.RecentCves.Error,
		syncer.SliceScrapeStatus:   s.ScrapeStatus.Error,
		syncer.SliceSummaryHistory: s.SummaryHistory.Error,
		syncer.SliceTimeline:       s.Timeline.Error,
		syncer.SliceTimelineStats:  s.TimelineStats.Error,
		syncer.SliceEmailConfig:    s.EmailConfig.Error,
		syncer.SliceSubscribers:    s.Subscribers.Error,
		syncer.SliceLastVisit:      s.LastVisit.Error,
	}
	for name, msg := range errs {
		if msg == "" {
			delete(errs, name)
		}
	}
	return errs
}

func projectStatus(sl syncer.Slice[model.ScrapeStatus]) StatusCard {
	st := sl.Value
	label, class := ScrapeBadge(st.Status)
	card := StatusCard{
		Label:        label,
		Class:        class,
		LastRun:      "Brak danych",
		NextRun:      "Brak danych",
		ItemsScraped: st.ItemsScraped,
		Errors:       st.Errors,
	}
	if sl.Phase == syncer.PhaseEmpty {
		card.Label, card.Class = "", ""
	}
	if !st.LastRun.IsZero() {
		card.LastRun = FormatDateTime(st.LastRun)
	}
	if !st.NextRun.IsZero() {
		card.NextRun = FormatDateTime(st.NextRun)
	}
	return card
}

func projectFacets(selected filter.Facet) []FacetButton {
	buttons := make([]FacetButton, 0, len(filter.Facets))
	for _, f := range filter.Facets {
		buttons = append(buttons, FacetButton{
			Value:  string(f),
			Label:  FacetLabel(f),
			Active: f == selected,
		})
	}
	return buttons
}

func projectCves(cves []model.CveRecord) []CveRow {
	rows := make([]CveRow, 0, len(cves))
	for i := range cves {
		c := &cves[i]
		id := c.CveID
		if id == "" {
			id = c.ID
		}
		row := CveRow{
			ID:           id,
			Title:        c.Title,
			Description:  c.Description,
			Severity:     string(c.Severity),
			Badge:        SeverityBadge(c.Severity),
			Score:        "N/A",
			HighSeverity: c.HighSeverity(),
			Source:       c.Source,
			URL:          c.URL,
		}
		if c.Score != nil {
			row.Score = fmt.Sprintf("%.1f", *c.Score)
		}
		if c.PublishedDate != nil {
			row.Published = FormatDate(*c.PublishedDate)
		}
		rows = append(rows, row)
	}
	return rows
}

func projectLastVisit(sl syncer.Slice[model.LastVisit]) string {
	if sl.Value.LastVisit == nil {
		return ""
	}
	return FormatDateTime(*sl.Value.LastVisit)
}

// SeverityBadge returns the badge classes for a severity.
func SeverityBadge(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "bg-red-100 text-red-800 border-red-200"
	case model.SeverityHigh:
		return "bg-orange-100 text-orange-800 border-orange-200"
	case model.SeverityMedium:
		return "bg-yellow-100 text-yellow-800 border-yellow-200"
	case model.SeverityLow:
		return "bg-green-100 text-green-800 border-green-200"
	default:
		return "bg-gray-100 text-gray-800 border-gray-200"
	}
}

// ScrapeBadge returns the label and classes for a scrape state. Anything
// other than completed or error reads as in progress.
func ScrapeBadge(s model.ScrapeState) (string, string) {
	switch s {
	case model.ScrapeCompleted:
		return "✅ Ukończono", "bg-green-100 text-green-800"
	case model.ScrapeError:
		return "❌ Błąd", "bg-red-100 text-red-800"
	case model.ScrapeNotStarted:
		return "Nie rozpoczęto", "bg-gray-100 text-gray-800"
	default:
		return "⏳ W trakcie", "bg-yellow-100 text-yellow-800"
	}
}

var facetLabels = map[filter.Facet]string{
	filter.FacetAll:                     "Wszystkie",
	filter.Facet(model.SeverityCritical): "Krytyczne",
	filter.Facet(model.SeverityHigh):     "Wysokie",
	filter.Facet(model.SeverityMedium):   "Średnie",
	filter.Facet(model.SeverityLow):      "Niskie",
}

func FacetLabel(f filter.Facet) string {
	if l, ok := facetLabels[f]; ok {
		return l
	}
	return strings.ToLower(string(f))
}

const (
	dateTimeLayout = "02.01.2006, 15:04:05"
	dateLayout     = "02.01.2006"
)

// FormatDateTime renders a timestamp in the local zone, or "" when unset.
func FormatDateTime(ts model.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(dateTimeLayout)
}

func FormatDate(ts model.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(dateLayout)
}
