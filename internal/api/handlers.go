// Package api exposes the reconciliation reports over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"example.com/reconciliation/internal/auth"
	"example.com/reconciliation/internal/domain"
)

// Reconciler runs the pipeline for a query. Implemented by domain.Service.
type Reconciler interface {
	Reconcile(ctx context.Context, query domain.Query) (*domain.Report, error)
}

// Handler coordinates HTTP requests with the reconciliation service.
type Handler struct {
	service Reconciler
}

// NewHandler builds a Handler.
func NewHandler(service Reconciler) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/reports/overview", h.overview)
	mux.HandleFunc("/v1/reports/advisors", h.advisors)
	mux.HandleFunc("/v1/reports/best-time", h.bestTime)
	mux.HandleFunc("/v1/reports/forecast-backcast", h.forecastBackcast)
	mux.HandleFunc("/v1/reconciliation", h.reconciliation)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	report, ok := h.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, OverviewResponse{
		RunID:          report.RunID,
		GeneratedAt:    report.GeneratedAt,
		Overview:       report.Metrics.Overview,
		Funnel:         report.Metrics.Funnel,
		ForecastCount:  report.Metrics.ForecastCount,
		BackcastCount:  report.Metrics.BackcastCount,
		SkippedRecords: report.Skipped,
	})
}

func (h *Handler) advisors(w http.ResponseWriter, r *http.Request) {
	report, ok := h.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, AdvisorsResponse{
		RunID:     report.RunID,
		ByAdvisor: report.Metrics.ByAdvisor,
	})
}

func (h *Handler) bestTime(w http.ResponseWriter, r *http.Request) {
	report, ok := h.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, BestTimeResponse{
		RunID:    report.RunID,
		BestTime: report.Metrics.BestTime,
	})
}

func (h *Handler) forecastBackcast(w http.ResponseWriter, r *http.Request) {
	report, ok := h.run(w, r)
	if !ok {
		return
	}

	resp := ForecastBackcastResponse{
		RunID:    report.RunID,
		Forecast: make([]EventView, 0, len(report.Forecast)),
		Backcast: make([]PairView, 0, len(report.Pairs)),
	}
	for _, event := range report.Forecast {
		resp.Forecast = append(resp.Forecast, toEventView(event))
	}
	for _, pair := range report.Pairs {
		resp.Backcast = append(resp.Backcast, toPairView(pair))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) reconciliation(w http.ResponseWriter, r *http.Request) {
	report, ok := h.run(w, r)
	if !ok {
		return
	}

	resp := ReconciliationResponse{
		RunID:    report.RunID,
		NewLinks: report.NewLinks,
		Skipped:  report.Skipped,
		Pairs:    make([]PairView, 0, len(report.Pairs)),
		Orphans:  make([]ActivityView, 0, len(report.Orphans)),
	}
	for _, pair := range report.Pairs {
		resp.Pairs = append(resp.Pairs, toPairView(pair))
	}
	for _, orphan := range report.Orphans {
		resp.Orphans = append(resp.Orphans, toActivityView(orphan))
	}
	writeJSON(w, http.StatusOK, resp)
}

// run parses the shared query surface, executes the pipeline, and writes any
// error response. The boolean reports whether a report was produced.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) (*domain.Report, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return nil, false
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeAnalyticsRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope analytics:read required")
		return nil, false
	}

	query, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return nil, false
	}

	report, err := h.service.Reconcile(r.Context(), query)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRange):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		case errors.Is(err, domain.ErrUnknownAdvisor):
			writeError(w, http.StatusNotFound, "advisor_not_found", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return nil, false
	}
	return report, true
}

func parseQuery(r *http.Request) (domain.Query, error) {
	values := r.URL.Query()
	query := domain.Query{AdvisorID: values.Get("advisor_id")}

	start, err := parseDateParam(values.Get("start_date"), false)
	if err != nil {
		return domain.Query{}, err
	}
	end, err := parseDateParam(values.Get("end_date"), true)
	if err != nil {
		return domain.Query{}, err
	}
	query.Start = start
	query.End = end
	return query, nil
}

// parseDateParam accepts RFC3339 timestamps or plain dates. A date-only end
// bound is inclusive, so it expands to the last instant of that day.
func parseDateParam(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		ts = ts.UTC()
		return &ts, nil
	}
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, errors.New("dates must be RFC3339 or YYYY-MM-DD")
	}
	ts := day.UTC()
	if endOfDay {
		ts = ts.Add(24*time.Hour - time.Nanosecond)
	}
	return &ts, nil
}

// OverviewResponse is the body for /v1/reports/overview.
type OverviewResponse struct {
	RunID          string          `json:"run_id"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Overview       domain.Overview `json:"overview"`
	Funnel         domain.Funnel   `json:"funnel"`
	ForecastCount  int             `json:"forecast_count"`
	BackcastCount  int             `json:"backcast_count"`
	SkippedRecords int             `json:"skipped_records"`
}

// AdvisorsResponse is the body for /v1/reports/advisors.
type AdvisorsResponse struct {
	RunID     string                `json:"run_id"`
	ByAdvisor []domain.AdvisorStats `json:"byAdvisor"`
}

// BestTimeResponse is the body for /v1/reports/best-time.
type BestTimeResponse struct {
	RunID    string             `json:"run_id"`
	BestTime []domain.HourStats `json:"bestTime"`
}

// EventView exposes a calendar event.
type EventView struct {
	EventID       string    `json:"event_id"`
	AdvisorID     string    `json:"advisor_id,omitempty"`
	HostName      string    `json:"host_name,omitempty"`
	InviteeEmail  string    `json:"invitee_email"`
	InviteeName   string    `json:"invitee_name,omitempty"`
	EventTypeName string    `json:"event_type_name"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
}

// ActivityView exposes an activity record.
type ActivityView struct {
	ActivityID     string    `json:"activity_id"`
	SubjectID      string    `json:"subject_id"`
	SubjectEmail   string    `json:"subject_email,omitempty"`
	AdvisorID      string    `json:"advisor_id,omitempty"`
	Category       string    `json:"category"`
	Result         string    `json:"result,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	MatchedEventID string    `json:"matched_event_id,omitempty"`
}

// PairView is one reconciled event with its activity, if any.
type PairView struct {
	Event      EventView     `json:"event"`
	Activity   *ActivityView `json:"activity,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Matched    bool          `json:"matched"`
}

// ForecastBackcastResponse splits the range's events around "now".
type ForecastBackcastResponse struct {
	RunID    string      `json:"run_id"`
	Forecast []EventView `json:"forecast"`
	Backcast []PairView  `json:"backcast"`
}

// ReconciliationResponse is the body for /v1/reconciliation.
type ReconciliationResponse struct {
	RunID    string         `json:"run_id"`
	NewLinks int            `json:"new_links"`
	Skipped  int            `json:"skipped"`
	Pairs    []PairView     `json:"pairs"`
	Orphans  []ActivityView `json:"orphans"`
}

func toEventView(event domain.CalendarEvent) EventView {
	return EventView{
		EventID:       event.ID,
		AdvisorID:     event.AdvisorID,
		HostName:      event.HostName,
		InviteeEmail:  event.InviteeEmail,
		InviteeName:   event.InviteeName,
		EventTypeName: event.EventTypeName,
		StartTime:     event.StartTime,
		EndTime:       event.EndTime,
		Status:        string(event.Status),
	}
}

func toActivityView(record domain.ActivityRecord) ActivityView {
	return ActivityView{
		ActivityID:     record.ID,
		SubjectID:      record.SubjectID,
		SubjectEmail:   record.SubjectEmail,
		AdvisorID:      record.AdvisorID,
		Category:       record.Category,
		Result:         record.Result,
		CreatedAt:      record.CreatedAt,
		MatchedEventID: record.MatchedEventID,
	}
}

func toPairView(pair domain.ReconciledPair) PairView {
	view := PairView{
		Event:   toEventView(pair.Event),
		Matched: pair.Matched(),
	}
	if pair.Matched() {
		activity := toActivityView(*pair.Activity)
		view.Activity = &activity
		view.Confidence = pair.Confidence
	}
	return view
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
