package domain

import (
	"fmt"
	"sort"
	"time"
)

// ReconciledPair associates a calendar event with the activity record that
// most plausibly documents it. Activity is nil when the event is unmatched.
// Confidence decays linearly from 1.0 (activity logged at the event start)
// to 0.0 (activity logged at the edge of the tolerance window).
type ReconciledPair struct {
	Event      CalendarEvent
	Activity   *ActivityRecord
	Confidence float64
}

// Matched reports whether an activity was found for the event.
func (p ReconciledPair) Matched() bool {
	return p.Activity != nil
}

// MatchResult is the complete reconciliation of a date range. Every active
// event in the input appears exactly once: past events in Pairs (matched or
// not), future events in Forecast. Canceled events never participate in
// matching but are retained for cancellation denominators.
type MatchResult struct {
	Pairs    []ReconciledPair
	Forecast []CalendarEvent
	Canceled []CalendarEvent
	Orphans  []ActivityRecord
}

// Matcher pairs calendar events with deduplicated activity records using
// invitee identity and temporal proximity. Matching is deterministic; the
// same inputs always reconcile to the same pairs.
type Matcher struct {
	window time.Duration
}

// NewMatcher constructs a Matcher with the given symmetric tolerance window
// around each event's start time. A non-positive window is a configuration
// error and fails immediately.
func NewMatcher(window time.Duration) (*Matcher, error) {
	if window <= 0 {
		return nil, fmt.Errorf("matcher: tolerance window must be positive, got %s", window)
	}
	return &Matcher{window: window}, nil
}

// Window returns the configured tolerance window.
func (m *Matcher) Window() time.Duration {
	return m.window
}

// Match reconciles events against activities. The activities are expected to
// be deduplicated already; pass them through Deduplicate first. Events with a
// start time at or after now cannot have a logged outcome yet and are
// reported as forecast instead of unmatched.
//
// An activity is a candidate for an event when it is explicitly linked to the
// event, or its subject email equals the invitee email (case-insensitively),
// and in either case its creation timestamp lies within the tolerance window
// of the event start. The closest candidate wins; ties go to the smallest
// activity id. Each activity is assigned to at most one event.
func (m *Matcher) Match(events []CalendarEvent, activities []ActivityRecord, now time.Time) MatchResult {
	ordered := make([]CalendarEvent, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].StartTime.Equal(ordered[j].StartTime) {
			return ordered[i].StartTime.Before(ordered[j].StartTime)
		}
		return ordered[i].ID < ordered[j].ID
	})

	claimed := make(map[string]bool, len(activities))
	result := MatchResult{}

	for _, event := range ordered {
		if event.Canceled() {
			result.Canceled = append(result.Canceled, event)
			continue
		}
		if !event.StartTime.Before(now) {
			result.Forecast = append(result.Forecast, event)
			continue
		}

		best := -1
		var bestDelta time.Duration
		for i, act := range activities {
			if claimed[act.ID] {
				continue
			}
			if !m.candidate(event, act) {
				continue
			}
			delta := absDuration(act.CreatedAt.Sub(event.StartTime))
			if best == -1 || delta < bestDelta || (delta == bestDelta && act.ID < activities[best].ID) {
				best = i
				bestDelta = delta
			}
		}

		pair := ReconciledPair{Event: event}
		if best >= 0 {
			act := activities[best]
			claimed[act.ID] = true
			pair.Activity = &act
			pair.Confidence = m.confidence(bestDelta)
		}
		result.Pairs = append(result.Pairs, pair)
	}

	for _, act := range activities {
		if !claimed[act.ID] {
			result.Orphans = append(result.Orphans, act)
		}
	}

	return result
}

func (m *Matcher) candidate(event CalendarEvent, act ActivityRecord) bool {
	linked := act.MatchedEventID != "" && act.MatchedEventID == event.ID
	// Store rows may arrive un-normalized; two records that both lack an
	// email share no identity and must never pair up.
	subjectEmail := NormalizeEmail(act.SubjectEmail)
	sameInvitee := subjectEmail != "" && subjectEmail == NormalizeEmail(event.InviteeEmail)
	if !linked && !sameInvitee {
		return false
	}
	return absDuration(act.CreatedAt.Sub(event.StartTime)) <= m.window
}

func (m *Matcher) confidence(delta time.Duration) float64 {
	score := 1.0 - float64(delta)/float64(m.window)
	if score < 0 {
		return 0
	}
	return score
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
