package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/reconciliation/internal/domain"
)

// Event types emitted by the upstream sync pipelines.
const (
	EventTypeCalendarUpserted = "calendar.event.upserted"
	EventTypeActivityUpserted = "crm.activity.upserted"
	EventTypeCallUpserted     = "crm.call.upserted"
)

// RecordUpserter is the write surface the handler needs from the store.
type RecordUpserter interface {
	UpsertEvent(ctx context.Context, event domain.CalendarEvent) error
	UpsertActivity(ctx context.Context, record domain.ActivityRecord) error
	UpsertCall(ctx context.Context, call domain.CallRecord) error
}

// UpsertHandler persists decoded sync messages through the record store.
type UpsertHandler struct {
	store RecordUpserter
}

// NewUpsertHandler constructs an UpsertHandler.
func NewUpsertHandler(store RecordUpserter) *UpsertHandler {
	return &UpsertHandler{store: store}
}

type calendarEventPayload struct {
	EventID       string    `json:"event_id"`
	AdvisorID     string    `json:"advisor_id"`
	HostName      string    `json:"host_name"`
	InviteeEmail  string    `json:"invitee_email"`
	InviteeName   string    `json:"invitee_name"`
	EventTypeName string    `json:"event_type_name"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
}

type activityPayload struct {
	ActivityID   string    `json:"activity_id"`
	SubjectID    string    `json:"subject_id"`
	SubjectEmail string    `json:"subject_email"`
	AdvisorID    string    `json:"advisor_id"`
	Category     string    `json:"category"`
	Result       string    `json:"result"`
	CreatedAt    time.Time `json:"created_at"`
}

type callPayload struct {
	CallID     string    `json:"call_id"`
	AdvisorID  string    `json:"advisor_id"`
	Direction  string    `json:"direction"`
	Status     string    `json:"status"`
	Duration   int       `json:"duration_sec"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Handle routes one decoded message to the matching upsert. Payloads that can
// never be stored (missing external id, inverted times) are skipped rather
// than retried.
func (h *UpsertHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case EventTypeCalendarUpserted:
		return h.handleEvent(ctx, msg)
	case EventTypeActivityUpserted:
		return h.handleActivity(ctx, msg)
	case EventTypeCallUpserted:
		return h.handleCall(ctx, msg)
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrSkipMessage, msg.EventType)
	}
}

func (h *UpsertHandler) handleEvent(ctx context.Context, msg Message) error {
	var payload calendarEventPayload
	if err := unmarshalPayload(msg, &payload); err != nil {
		return err
	}
	if payload.EventID == "" {
		return fmt.Errorf("%w: calendar event without event_id", ErrSkipMessage)
	}
	if !payload.StartTime.Before(payload.EndTime) {
		return fmt.Errorf("%w: event %s start %s is not before end %s", ErrSkipMessage, payload.EventID, payload.StartTime, payload.EndTime)
	}

	status := domain.EventStatus(payload.Status)
	if status != domain.EventStatusActive && status != domain.EventStatusCanceled {
		return fmt.Errorf("%w: event %s has unknown status %q", ErrSkipMessage, payload.EventID, payload.Status)
	}

	return h.store.UpsertEvent(ctx, domain.CalendarEvent{
		ID:            payload.EventID,
		AdvisorID:     payload.AdvisorID,
		HostName:      payload.HostName,
		InviteeEmail:  domain.NormalizeEmail(payload.InviteeEmail),
		InviteeName:   payload.InviteeName,
		EventTypeName: payload.EventTypeName,
		StartTime:     payload.StartTime.UTC(),
		EndTime:       payload.EndTime.UTC(),
		Status:        status,
	})
}

func (h *UpsertHandler) handleActivity(ctx context.Context, msg Message) error {
	var payload activityPayload
	if err := unmarshalPayload(msg, &payload); err != nil {
		return err
	}
	if payload.ActivityID == "" {
		return fmt.Errorf("%w: activity without activity_id", ErrSkipMessage)
	}
	if payload.CreatedAt.IsZero() {
		return fmt.Errorf("%w: activity %s without created_at", ErrSkipMessage, payload.ActivityID)
	}

	return h.store.UpsertActivity(ctx, domain.ActivityRecord{
		ID:           payload.ActivityID,
		SubjectID:    payload.SubjectID,
		SubjectEmail: domain.NormalizeEmail(payload.SubjectEmail),
		AdvisorID:    payload.AdvisorID,
		Category:     payload.Category,
		Result:       payload.Result,
		CreatedAt:    payload.CreatedAt.UTC(),
	})
}

func (h *UpsertHandler) handleCall(ctx context.Context, msg Message) error {
	var payload callPayload
	if err := unmarshalPayload(msg, &payload); err != nil {
		return err
	}
	if payload.CallID == "" {
		return fmt.Errorf("%w: call without call_id", ErrSkipMessage)
	}
	if payload.OccurredAt.IsZero() {
		return fmt.Errorf("%w: call %s without occurred_at", ErrSkipMessage, payload.CallID)
	}

	return h.store.UpsertCall(ctx, domain.CallRecord{
		ID:        payload.CallID,
		AdvisorID: payload.AdvisorID,
		Direction: payload.Direction,
		Status:    payload.Status,
		Duration:  payload.Duration,
		At:        payload.OccurredAt.UTC(),
	})
}

func unmarshalPayload(msg Message, out interface{}) error {
	if err := json.Unmarshal(msg.Payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrSkipMessage, err)
	}
	return nil
}
