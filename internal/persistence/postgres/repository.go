// Package postgres implements the record store contracts over pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/reconciliation/internal/domain"
)

// Repository provides Postgres-backed persistence for calendar events,
// activity records, and calls. Reads are single bulk range scans; writes are
// idempotent upserts keyed on the upstream external id.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `event_id, COALESCE(advisor_id, ''), COALESCE(host_name, ''), invitee_email, COALESCE(invitee_name, ''), event_type_name, start_time, end_time, status`

// ListEvents returns calendar events matching the filter in one scan.
func (r *Repository) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.CalendarEvent, error) {
	q := newQuery(`SELECT ` + eventColumns + ` FROM calendar_events`)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		q.where("status = ANY(%s)", statuses)
	}
	q.timeRange("start_time", filter.Start, filter.End)
	q.advisors(filter.AdvisorIDs)
	q.orderBy("start_time, event_id")

	rows, err := r.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.CalendarEvent
	for rows.Next() {
		var e domain.CalendarEvent
		if err := rows.Scan(&e.ID, &e.AdvisorID, &e.HostName, &e.InviteeEmail, &e.InviteeName, &e.EventTypeName, &e.StartTime, &e.EndTime, &e.Status); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const activityColumns = `activity_id, COALESCE(subject_id, ''), COALESCE(subject_email, ''), COALESCE(advisor_id, ''), COALESCE(category, ''), COALESCE(result_value, ''), created_at, COALESCE(matched_event_id, '')`

// ListActivities returns activity records matching the filter in one scan.
func (r *Repository) ListActivities(ctx context.Context, filter domain.ActivityFilter) ([]domain.ActivityRecord, error) {
	q := newQuery(`SELECT ` + activityColumns + ` FROM crm_activities`)
	q.timeRange("created_at", filter.Start, filter.End)
	q.advisors(filter.AdvisorIDs)
	q.orderBy("created_at, activity_id")

	rows, err := r.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ActivityRecord
	for rows.Next() {
		var a domain.ActivityRecord
		if err := rows.Scan(&a.ID, &a.SubjectID, &a.SubjectEmail, &a.AdvisorID, &a.Category, &a.Result, &a.CreatedAt, &a.MatchedEventID); err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

// ListCalls returns call records matching the filter in one scan.
func (r *Repository) ListCalls(ctx context.Context, filter domain.CallFilter) ([]domain.CallRecord, error) {
	q := newQuery(`SELECT call_id, COALESCE(advisor_id, ''), direction, status, duration_sec, occurred_at FROM calls`)
	q.timeRange("occurred_at", filter.Start, filter.End)
	q.advisors(filter.AdvisorIDs)
	q.orderBy("occurred_at, call_id")

	rows, err := r.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []domain.CallRecord
	for rows.Next() {
		var c domain.CallRecord
		if err := rows.Scan(&c.ID, &c.AdvisorID, &c.Direction, &c.Status, &c.Duration, &c.At); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// SaveMatchLinks writes discovered links onto the activity rows in a single
// transaction, so a failure leaves no partial links behind. Writing the same
// links again is a no-op at the row level.
func (r *Repository) SaveMatchLinks(ctx context.Context, links []domain.MatchLink) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `UPDATE crm_activities
        SET matched_event_id = $2, match_confidence = $3, matched_at = NOW()
        WHERE activity_id = $1`

	for _, link := range links {
		if _, err := tx.Exec(ctx, stmt, link.ActivityID, link.EventID, link.Confidence); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// UpsertEvent inserts or refreshes a calendar event keyed on its external id.
// A canceled event is never resurrected by a late upsert: status only moves
// toward canceled for a given id.
func (r *Repository) UpsertEvent(ctx context.Context, event domain.CalendarEvent) error {
	const stmt = `INSERT INTO calendar_events (event_id, advisor_id, host_name, invitee_email, invitee_name, event_type_name, start_time, end_time, status, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
        ON CONFLICT (event_id) DO UPDATE SET
            advisor_id = EXCLUDED.advisor_id,
            host_name = EXCLUDED.host_name,
            invitee_email = EXCLUDED.invitee_email,
            invitee_name = EXCLUDED.invitee_name,
            event_type_name = EXCLUDED.event_type_name,
            start_time = EXCLUDED.start_time,
            end_time = EXCLUDED.end_time,
            status = CASE WHEN calendar_events.status = 'canceled' THEN 'canceled' ELSE EXCLUDED.status END,
            updated_at = NOW()`

	_, err := r.pool.Exec(ctx, stmt,
		event.ID,
		nullIfEmpty(event.AdvisorID),
		nullIfEmpty(event.HostName),
		event.InviteeEmail,
		nullIfEmpty(event.InviteeName),
		event.EventTypeName,
		event.StartTime,
		event.EndTime,
		string(event.Status),
	)
	return err
}

// UpsertActivity inserts or refreshes an activity record keyed on its
// external id. The match link column is owned by the reconciliation pipeline
// and is deliberately left untouched here.
func (r *Repository) UpsertActivity(ctx context.Context, record domain.ActivityRecord) error {
	const stmt = `INSERT INTO crm_activities (activity_id, subject_id, subject_email, advisor_id, category, result_value, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
        ON CONFLICT (activity_id) DO UPDATE SET
            subject_id = EXCLUDED.subject_id,
            subject_email = EXCLUDED.subject_email,
            advisor_id = EXCLUDED.advisor_id,
            category = EXCLUDED.category,
            result_value = EXCLUDED.result_value,
            created_at = EXCLUDED.created_at,
            updated_at = NOW()`

	_, err := r.pool.Exec(ctx, stmt,
		record.ID,
		nullIfEmpty(record.SubjectID),
		nullIfEmpty(record.SubjectEmail),
		nullIfEmpty(record.AdvisorID),
		nullIfEmpty(record.Category),
		nullIfEmpty(record.Result),
		record.CreatedAt,
	)
	return err
}

// UpsertCall inserts or refreshes a call record keyed on its external id.
func (r *Repository) UpsertCall(ctx context.Context, call domain.CallRecord) error {
	const stmt = `INSERT INTO calls (call_id, advisor_id, direction, status, duration_sec, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (call_id) DO UPDATE SET
            advisor_id = EXCLUDED.advisor_id,
            direction = EXCLUDED.direction,
            status = EXCLUDED.status,
            duration_sec = EXCLUDED.duration_sec,
            occurred_at = EXCLUDED.occurred_at`

	_, err := r.pool.Exec(ctx, stmt,
		call.ID,
		nullIfEmpty(call.AdvisorID),
		call.Direction,
		call.Status,
		call.Duration,
		call.At,
	)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// query assembles a filtered SELECT with positional args.
type query struct {
	base    string
	clauses []string
	order   string
	args    []interface{}
}

func newQuery(base string) *query {
	return &query{base: base}
}

func (q *query) where(format string, arg interface{}) {
	q.args = append(q.args, arg)
	q.clauses = append(q.clauses, fmt.Sprintf(format, fmt.Sprintf("$%d", len(q.args))))
}

func (q *query) timeRange(column string, start, end *time.Time) {
	if start != nil {
		q.where(column+" >= %s", *start)
	}
	if end != nil {
		q.where(column+" <= %s", *end)
	}
}

func (q *query) advisors(ids []string) {
	if len(ids) > 0 {
		q.where("advisor_id = ANY(%s)", ids)
	}
}

func (q *query) orderBy(order string) {
	q.order = order
}

func (q *query) sql() string {
	sql := q.base
	if len(q.clauses) > 0 {
		sql += " WHERE " + strings.Join(q.clauses, " AND ")
	}
	if q.order != "" {
		sql += " ORDER BY " + q.order
	}
	return sql
}
