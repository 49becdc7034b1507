package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/reconciliation/internal/observability"
)

var (
	// ErrInvalidRange is returned when the query's start date lies after its
	// end date. The range is rejected rather than silently swapped.
	ErrInvalidRange = errors.New("start date is after end date")
	// ErrUnknownAdvisor is returned when an advisor filter does not resolve
	// to any known alias set. Distinct from a range with zero records.
	ErrUnknownAdvisor = errors.New("advisor not found")
)

// EventFilter selects calendar events by status, start-time range, and
// advisor ids. Nil range bounds mean unbounded on that side.
type EventFilter struct {
	Start      *time.Time
	End        *time.Time
	Statuses   []EventStatus
	AdvisorIDs []string
}

// ActivityFilter selects activity records by creation-time range and advisor ids.
type ActivityFilter struct {
	Start      *time.Time
	End        *time.Time
	AdvisorIDs []string
}

// CallFilter selects call records by call-time range and advisor ids.
type CallFilter struct {
	Start      *time.Time
	End        *time.Time
	AdvisorIDs []string
}

// MatchLink records a newly discovered event/activity association to be
// persisted back onto the activity record.
type MatchLink struct {
	ActivityID string
	EventID    string
	Confidence float64
}

// RecordStore is the read/write contract against the durable record tables.
// Each list call is a single bulk fetch; the store owns efficient range scans.
type RecordStore interface {
	ListEvents(ctx context.Context, filter EventFilter) ([]CalendarEvent, error)
	ListActivities(ctx context.Context, filter ActivityFilter) ([]ActivityRecord, error)
	ListCalls(ctx context.Context, filter CallFilter) ([]CallRecord, error)
	SaveMatchLinks(ctx context.Context, links []MatchLink) error
}

// AliasSet is the group of upstream advisor ids known to represent one human.
type AliasSet struct {
	CanonicalID string
	Name        string
	IDs         []string
}

// AliasResolver looks up advisor identity aliases. Resolve is called once per
// query, never per record.
type AliasResolver interface {
	// Resolve returns the alias set for an advisor id, or ErrUnknownAdvisor.
	Resolve(ctx context.Context, advisorID string) (AliasSet, error)
	// Identities returns a snapshot lookup covering the whole directory,
	// used to group attribution rows by human rather than raw id.
	Identities(ctx context.Context) (IdentityFunc, error)
}

// Query is the external filter surface of the reconciliation pipeline.
type Query struct {
	Start     *time.Time
	End       *time.Time
	AdvisorID string
}

// Report is the result of one reconciliation run over a date range.
type Report struct {
	RunID       string
	GeneratedAt time.Time
	Metrics     Metrics
	Pairs       []ReconciledPair
	Forecast    []CalendarEvent
	Orphans     []ActivityRecord
	Skipped     int
	NewLinks    int
}

// Service is the query façade: it validates filters, runs deduplication,
// matching, and aggregation in order, and persists newly discovered match
// links. It holds no state between invocations; each call owns its working
// set, so concurrent queries over different ranges do not interact.
type Service struct {
	store         RecordStore
	aliases       AliasResolver
	matcher       *Matcher
	minHourSample int
	now           func() time.Time
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the time source, used by tests to pin "now".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMinHourSample overrides the best-time minimum sample size.
func WithMinHourSample(n int) Option {
	return func(s *Service) {
		s.minHourSample = n
	}
}

// NewService constructs the façade.
func NewService(store RecordStore, aliases AliasResolver, matcher *Matcher, opts ...Option) *Service {
	s := &Service{
		store:         store,
		aliases:       aliases,
		matcher:       matcher,
		minHourSample: DefaultMinHourSample,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile runs the full pipeline for the query. A range with zero data
// yields all-zero aggregates, not an error. The store is only written to
// persist match links, and only after aggregation has succeeded; re-running
// the same query produces the same links.
func (s *Service) Reconcile(ctx context.Context, query Query) (*Report, error) {
	if query.Start != nil && query.End != nil && query.Start.After(*query.End) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			query.Start.Format(time.RFC3339), query.End.Format(time.RFC3339))
	}

	var advisorIDs []string
	if query.AdvisorID != "" {
		alias, err := s.aliases.Resolve(ctx, query.AdvisorID)
		if err != nil {
			return nil, err
		}
		advisorIDs = alias.IDs
	}

	events, err := s.store.ListEvents(ctx, EventFilter{
		Start:      query.Start,
		End:        query.End,
		Statuses:   []EventStatus{EventStatusActive, EventStatusCanceled},
		AdvisorIDs: advisorIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	activities, err := s.store.ListActivities(ctx, ActivityFilter{
		Start:      query.Start,
		End:        query.End,
		AdvisorIDs: advisorIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	calls, err := s.store.ListCalls(ctx, CallFilter{
		Start:      query.Start,
		End:        query.End,
		AdvisorIDs: advisorIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}

	identify, err := s.aliases.Identities(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve advisor identities: %w", err)
	}

	deduped := Deduplicate(activities)
	observability.RecordSkippedActivities(deduped.Skipped)

	now := s.now()
	matched := s.matcher.Match(events, deduped.Records, now)
	metrics := Aggregate(matched, calls, identify, s.minHourSample)

	links := newLinks(matched)
	if len(links) > 0 {
		if err := s.store.SaveMatchLinks(ctx, links); err != nil {
			return nil, fmt.Errorf("save match links: %w", err)
		}
		observability.RecordLinksPersisted(len(links))
	}
	observability.RecordReconciliation(now)

	return &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: now,
		Metrics:     metrics,
		Pairs:       matched.Pairs,
		Forecast:    matched.Forecast,
		Orphans:     matched.Orphans,
		Skipped:     deduped.Skipped,
		NewLinks:    len(links),
	}, nil
}

// newLinks extracts associations the matcher discovered that are not yet
// recorded on the activity rows.
func newLinks(res MatchResult) []MatchLink {
	var links []MatchLink
	for _, pair := range res.Pairs {
		if !pair.Matched() {
			continue
		}
		if pair.Activity.MatchedEventID == pair.Event.ID {
			continue
		}
		links = append(links, MatchLink{
			ActivityID: pair.Activity.ID,
			EventID:    pair.Event.ID,
			Confidence: pair.Confidence,
		})
	}
	return links
}
