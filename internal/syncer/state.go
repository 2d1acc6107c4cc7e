package syncer

import (
	"fmt"
	"time"

	"github.com/dukerupert/cvewatch/internal/filter"
	"github.com/dukerupert/cvewatch/internal/model"
)

// Phase is the load state of one snapshot slice.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseLoading
	PhasePopulated
	PhaseStaleError
)

var phaseNames = map[Phase]string{
	PhaseEmpty:      "empty",
	PhaseLoading:    "loading",
	PhasePopulated:  "populated",
	PhaseStaleError: "stale_error",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

type event int

const (
	eventBegin event = iota
	eventSuccess
	eventFailure
)

// transitions is the complete per-slice state table. Pairs that are absent
// leave the phase unchanged.
var transitions = map[Phase]map[event]Phase{
	PhaseEmpty:      {eventBegin: PhaseLoading},
	PhaseLoading:    {eventBegin: PhaseLoading, eventSuccess: PhasePopulated, eventFailure: PhaseStaleError},
	PhasePopulated:  {eventBegin: PhaseLoading},
	PhaseStaleError: {eventBegin: PhaseLoading},
}

func next(from Phase, ev event) (Phase, bool) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, false
	}
	return to, true
}

// Slice is one named field of the snapshot. Value keeps the last successful
// result; a failed read sets Error and leaves Value alone.
type Slice[T any] struct {
	Phase     Phase     `json:"phase"`
	Value     T         `json:"value"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	seq  uint64
	prev Phase
}

// begin stamps a new read and returns its sequence number.
func (s *Slice[T]) begin() uint64 {
	if s.Phase != PhaseLoading {
		s.prev = s.Phase
	}
	s.Phase, _ = next(s.Phase, eventBegin)
	s.seq++
	return s.seq
}

// settle applies a read result. Results from any read other than the most
// recently begun one are discarded and settle reports false.
func (s *Slice[T]) settle(seq uint64, v T, err error, now time.Time) bool {
	if seq != s.seq {
		return false
	}
	ev := eventSuccess
	if err != nil {
		ev = eventFailure
	}
	to, ok := next(s.Phase, ev)
	if !ok {
		return false
	}
	s.Phase = to
	if err != nil {
		s.Error = err.Error()
		return true
	}
	s.Value = v
	s.Error = ""
	s.UpdatedAt = now
	return true
}

// abandon drops a read whose caller went away. The slice returns to the
// phase it had before loading began, keeping its value and error.
func (s *Slice[T]) abandon(seq uint64) bool {
	if seq != s.seq || s.Phase != PhaseLoading {
		return false
	}
	s.Phase = s.prev
	return true
}

// Snapshot is the client's canonical state. Slice values are replaced
// wholesale on refresh and never modified in place, so copies of a
// Snapshot may share them.
type Snapshot struct {
	SessionID string `json:"session_id"`

	LatestSummary  Slice[model.DailySummary]      `json:"latest_summary"`
	RecentCves     Slice[[]model.CveRecord]       `json:"recent_cves"`
	ScrapeStatus   Slice[model.ScrapeStatus]      `json:"scrape_status"`
	SummaryHistory Slice[[]model.DailySummary]    `json:"summary_history"`
	Timeline       Slice[[]model.TimelineEntry]   `json:"timeline"`
	TimelineStats  Slice[model.TimelineStats]     `json:"timeline_stats"`
	EmailConfig    Slice[model.EmailConfigStatus] `json:"email_config"`
	Subscribers    Slice[[]model.EmailSubscriber] `json:"subscribers"`
	LastVisit      Slice[model.LastVisit]         `json:"last_visit"`

	SelectedSeverity filter.Facet `json:"selected_severity"`
	IsSyncing        bool         `json:"is_syncing"`
	InFlight         []Action     `json:"in_flight"`

	// Version increases on every change.
	Version uint64 `json:"version"`
}

// Loading reports whether any slice has a read outstanding.
func (s Snapshot) Loading() bool {
	for _, p := range s.Phases() {
		if p == PhaseLoading {
			return true
		}
	}
	return false
}

// Phases returns the phase of every slice keyed by slice name.
func (s Snapshot) Phases() map[string]Phase {
	return map[string]Phase{
		SliceLatestSummary:  s.LatestSummary.Phase,
		SliceRecentCves:     s.RecentCves.Phase,
		SliceScrapeStatus:   s.ScrapeStatus.Phase,
		SliceSummaryHistory: s.SummaryHistory.Phase,
		SliceTimeline:       s.Timeline.Phase,
		SliceTimelineStats:  s.TimelineStats.Phase,
		SliceEmailConfig:    s.EmailConfig.Phase,
		SliceSubscribers:    s.Subscribers.Phase,
		SliceLastVisit:      s.LastVisit.Phase,
	}
}

const (
	SliceLatestSummary  = "latest_summary"
	SliceRecentCves     = "recent_cves"
	SliceScrapeStatus   = "scrape_status"
	SliceSummaryHistory = "summary_history"
	SliceTimeline       = "timeline"
	SliceTimelineStats  = "timeline_stats"
	SliceEmailConfig    = "email_config"
	SliceSubscribers    = "subscribers"
	SliceLastVisit      = "last_visit"
)
