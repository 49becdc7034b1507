// Package domain holds the reconciliation core: record shapes, deduplication,
// event/activity matching, and metric aggregation.
package domain

import (
	"strings"
	"time"
)

// EventStatus is the lifecycle state of a calendar event.
type EventStatus string

const (
	EventStatusActive   EventStatus = "active"
	EventStatusCanceled EventStatus = "canceled"
)

// Activity categories recorded by the CRM. The set is fixed upstream.
const (
	CategoryQualification  = "qualification"
	CategoryInitialCall    = "initial-call"
	CategoryConceptMeeting = "concept-meeting"
	CategoryImplementation = "implementation-meeting"
	CategoryServiceCall    = "service-call"
)

// CalendarEvent is an externally scheduled meeting pulled from the calendar
// provider. IDs are the provider's stable external ids.
type CalendarEvent struct {
	ID            string
	AdvisorID     string // empty when the event is unassigned
	HostName      string
	InviteeEmail  string
	InviteeName   string
	EventTypeName string
	StartTime     time.Time
	EndTime       time.Time
	Status        EventStatus
}

// Canceled reports whether the event was canceled upstream.
func (e CalendarEvent) Canceled() bool {
	return e.Status == EventStatusCanceled
}

// ActivityRecord is a CRM-logged entry describing what happened in or around
// a meeting. CreatedAt is when the activity was logged, not when the
// interaction occurred.
type ActivityRecord struct {
	ID             string
	SubjectID      string // the lead the activity concerns
	SubjectEmail   string
	AdvisorID      string
	Category       string
	Result         string
	CreatedAt      time.Time
	MatchedEventID string // set once the record is linked to a calendar event
}

// CallRecord is a phone call logged by the telephony integration. It feeds
// the best-time-of-day aggregate and follows the same range/advisor filter
// contract as the two main record types.
type CallRecord struct {
	ID        string
	AdvisorID string
	Direction string
	Status    string
	Duration  int // seconds
	At        time.Time
}

// Reached reports whether the call actually connected.
func (c CallRecord) Reached() bool {
	return c.Status == "completed" && c.Duration > 0
}

// NormalizeEmail lowers and trims an email address so invitee and subject
// identities compare consistently across providers.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
