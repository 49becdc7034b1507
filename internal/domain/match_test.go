package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 20, 9, 0, 0, 0, time.UTC)

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher(72 * time.Hour)
	require.NoError(t, err)
	return m
}

func activeEvent(id, email string, start time.Time) CalendarEvent {
	return CalendarEvent{
		ID:           id,
		InviteeEmail: email,
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		Status:       EventStatusActive,
	}
}

func TestNewMatcherRejectsNonPositiveWindow(t *testing.T) {
	_, err := NewMatcher(0)
	require.Error(t, err)

	_, err = NewMatcher(-time.Hour)
	require.Error(t, err)
}

func TestMatchPrefersClosestEvent(t *testing.T) {
	// Two events for the same invitee on the same day; the activity logged
	// five minutes after the morning slot belongs to the morning slot only.
	morning := activeEvent("evt-1", "lead@example.com", time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	afternoon := activeEvent("evt-2", "lead@example.com", time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC))
	activity := ActivityRecord{
		ID:           "act-1",
		SubjectID:    "lead-1",
		SubjectEmail: "lead@example.com",
		Category:     CategoryInitialCall,
		CreatedAt:    time.Date(2026, time.March, 10, 10, 5, 0, 0, time.UTC),
	}

	result := newTestMatcher(t).Match([]CalendarEvent{afternoon, morning}, []ActivityRecord{activity}, testNow)

	require.Len(t, result.Pairs, 2)
	require.Equal(t, "evt-1", result.Pairs[0].Event.ID)
	require.True(t, result.Pairs[0].Matched())
	require.Equal(t, "act-1", result.Pairs[0].Activity.ID)
	require.Equal(t, "evt-2", result.Pairs[1].Event.ID)
	require.False(t, result.Pairs[1].Matched())
}

func TestMatchOutsideWindowIsOrphan(t *testing.T) {
	event := activeEvent("evt-1", "lead@example.com", time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	activity := ActivityRecord{
		ID:           "act-1",
		SubjectEmail: "lead@example.com",
		CreatedAt:    event.StartTime.Add(-5 * 24 * time.Hour),
	}

	result := newTestMatcher(t).Match([]CalendarEvent{event}, []ActivityRecord{activity}, testNow)

	require.Len(t, result.Pairs, 1)
	require.False(t, result.Pairs[0].Matched())
	require.Len(t, result.Orphans, 1)
	require.Equal(t, "act-1", result.Orphans[0].ID)
}

func TestMatchEmailComparisonIsCaseInsensitive(t *testing.T) {
	event := activeEvent("evt-1", "Lead@Example.COM", time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	activity := ActivityRecord{
		ID:           "act-1",
		SubjectEmail: "lead@example.com",
		CreatedAt:    event.StartTime.Add(time.Hour),
	}

	result := newTestMatcher(t).Match([]CalendarEvent{event}, []ActivityRecord{activity}, testNow)

	require.True(t, result.Pairs[0].Matched())
}

func TestMatchBlankEmailsShareNoIdentity(t *testing.T) {
	// Store rows can arrive un-normalized; an event without an invitee email
	// and an activity with a whitespace-only email both lack an identity and
	// must stay apart.
	event := activeEvent("evt-1", "", time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	activity := ActivityRecord{
		ID:           "act-1",
		SubjectID:    "lead-1",
		SubjectEmail: "   ",
		Category:     CategoryInitialCall,
		CreatedAt:    event.StartTime.Add(time.Hour),
	}

	result := newTestMatcher(t).Match([]CalendarEvent{event}, []ActivityRecord{activity}, testNow)

	require.Len(t, result.Pairs, 1)
	require.False(t, result.Pairs[0].Matched())
	require.Len(t, result.Orphans, 1)
}

func TestMatchExplicitLinkWithoutEmail(t *testing.T) {
	event := activeEvent("evt-1", "invitee@example.com", time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	activity := ActivityRecord{
		ID:             "act-1",
		SubjectEmail:   "different@example.com",
		MatchedEventID: "evt-1",
		CreatedAt:      event.StartTime.Add(2 * time.Hour),
	}

	result := newTestMatcher(t).Match([]CalendarEvent{event}, []ActivityRecord{activity}, testNow)

	require.True(t, result.Pairs[0].Matched())
	require.Equal(t, "act-1", result.Pairs[0].Activity.ID)
}

func TestMatchFutureEventIsForecastNotUnmatched(t *testing.T) {
	future := activeEvent("evt-1", "lead@example.com", testNow.Add(48*time.Hour))
	activity := ActivityRecord{
		ID:           "act-1",
		SubjectEmail: "lead@example.com",
		CreatedAt:    testNow.Add(-time.Hour),
	}

	result := newTestMatcher(t).Match([]CalendarEvent{future}, []ActivityRecord{activity}, testNow)

	require.Empty(t, result.Pairs)
	require.Len(t, result.Forecast, 1)
	require.Equal(t, "evt-1", result.Forecast[0].ID)
	// The activity stays an orphan; a future meeting cannot have an outcome yet.
	require.Len(t, result.Orphans, 1)
}

func TestMatchCanceledEventExcludedFromMatching(t *testing.T) {
	canceled := activeEvent("evt-1", "lead@example.com", time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	canceled.Status = EventStatusCanceled
	activity := ActivityRecord{
		ID:           "act-1",
		SubjectEmail: "lead@example.com",
		CreatedAt:    canceled.StartTime,
	}

	result := newTestMatcher(t).Match([]CalendarEvent{canceled}, []ActivityRecord{activity}, testNow)

	require.Empty(t, result.Pairs)
	require.Len(t, result.Canceled, 1)
	require.Len(t, result.Orphans, 1)
}

func TestMatchActivityClaimedByAtMostOneEvent(t *testing.T) {
	first := activeEvent("evt-1", "lead@example.com", time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	second := activeEvent("evt-2", "lead@example.com", time.Date(2026, time.March, 11, 10, 0, 0, 0, time.UTC))
	activity := ActivityRecord{
		ID:           "act-1",
		SubjectEmail: "lead@example.com",
		CreatedAt:    time.Date(2026, time.March, 10, 11, 0, 0, 0, time.UTC),
	}

	result := newTestMatcher(t).Match([]CalendarEvent{first, second}, []ActivityRecord{activity}, testNow)

	matchedCount := 0
	for _, pair := range result.Pairs {
		if pair.Matched() {
			matchedCount++
			require.Equal(t, "act-1", pair.Activity.ID)
		}
	}
	require.Equal(t, 1, matchedCount)
}

func TestMatchTotality(t *testing.T) {
	events := []CalendarEvent{
		activeEvent("evt-1", "a@example.com", testNow.Add(-48*time.Hour)),
		activeEvent("evt-2", "b@example.com", testNow.Add(-24*time.Hour)),
		activeEvent("evt-3", "c@example.com", testNow.Add(24*time.Hour)),
	}
	events = append(events, CalendarEvent{
		ID: "evt-4", InviteeEmail: "d@example.com",
		StartTime: testNow.Add(-12 * time.Hour), EndTime: testNow.Add(-11 * time.Hour),
		Status: EventStatusCanceled,
	})

	result := newTestMatcher(t).Match(events, nil, testNow)

	seen := map[string]int{}
	for _, pair := range result.Pairs {
		seen[pair.Event.ID]++
	}
	for _, event := range result.Forecast {
		seen[event.ID]++
	}
	for _, event := range result.Canceled {
		seen[event.ID]++
	}
	require.Len(t, seen, 4)
	for id, count := range seen {
		require.Equal(t, 1, count, "event %s appeared %d times", id, count)
	}
}

func TestMatchTimestampTieBreaksBySmallestActivityID(t *testing.T) {
	event := activeEvent("evt-1", "lead@example.com", time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	before := ActivityRecord{
		ID:           "act-b",
		SubjectID:    "lead-1",
		SubjectEmail: "lead@example.com",
		Category:     CategoryInitialCall,
		CreatedAt:    event.StartTime.Add(-time.Hour),
	}
	after := ActivityRecord{
		ID:           "act-a",
		SubjectID:    "lead-2",
		SubjectEmail: "lead@example.com",
		Category:     CategoryInitialCall,
		CreatedAt:    event.StartTime.Add(time.Hour),
	}

	result := newTestMatcher(t).Match([]CalendarEvent{event}, []ActivityRecord{before, after}, testNow)

	require.True(t, result.Pairs[0].Matched())
	require.Equal(t, "act-a", result.Pairs[0].Activity.ID)
}

func TestMatchConfidenceDecaysWithDistance(t *testing.T) {
	event := activeEvent("evt-1", "lead@example.com", time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	exact := ActivityRecord{
		ID:           "act-1",
		SubjectEmail: "lead@example.com",
		CreatedAt:    event.StartTime,
	}

	result := newTestMatcher(t).Match([]CalendarEvent{event}, []ActivityRecord{exact}, testNow)
	require.InDelta(t, 1.0, result.Pairs[0].Confidence, 1e-9)

	farEvent := activeEvent("evt-2", "far@example.com", time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC))
	far := ActivityRecord{
		ID:           "act-2",
		SubjectEmail: "far@example.com",
		CreatedAt:    farEvent.StartTime.Add(36 * time.Hour), // half the window
	}

	result = newTestMatcher(t).Match([]CalendarEvent{farEvent}, []ActivityRecord{far}, testNow)
	require.InDelta(t, 0.5, result.Pairs[0].Confidence, 1e-9)
}
