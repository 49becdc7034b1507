package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Overview mirrors the top-level dashboard numbers for a date range.
// Rates are percentages rounded half-up to one decimal place; counts are
// plain integers.
type Overview struct {
	TotalEvents    int     `json:"totalEvents"`
	ActiveEvents   int     `json:"activeEvents"`
	CanceledEvents int     `json:"canceledEvents"`
	UniqueSubjects int     `json:"uniqueSubjects"`
	CancelRate     float64 `json:"cancelRate"`
}

// Funnel counts how many of the range's events ended up documented by a
// matched activity record.
type Funnel struct {
	TotalEvents    int     `json:"totalEvents"`
	Documented     int     `json:"documented"`
	CompletionRate float64 `json:"completionRate"`
}

// AdvisorStats is the per-advisor attribution row. Planned and completed are
// grouped by resolved advisor identity, so multiple upstream ids belonging to
// the same human roll up into a single row.
type AdvisorStats struct {
	Advisor        string  `json:"advisor"`
	AdvisorID      string  `json:"advisorId"`
	Planned        int     `json:"planned"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completionRate"`
	Missing        int     `json:"missing"`
}

// HourStats reports call outcomes for one hour of the day. Hours with fewer
// calls than the minimum sample size are omitted so a single lucky call does
// not surface as a 100% hour.
type HourStats struct {
	Hour        int     `json:"hour"`
	TotalCalls  int     `json:"totalCalls"`
	Reached     int     `json:"reached"`
	SuccessRate float64 `json:"successRate"`
}

// Metrics is the full aggregate for one query.
type Metrics struct {
	Overview      Overview       `json:"overview"`
	Funnel        Funnel         `json:"funnel"`
	ByAdvisor     []AdvisorStats `json:"byAdvisor"`
	BestTime      []HourStats    `json:"bestTime"`
	ForecastCount int            `json:"forecastCount"`
	BackcastCount int            `json:"backcastCount"`
}

// AdvisorIdentity names the human behind one or more upstream advisor ids.
type AdvisorIdentity struct {
	CanonicalID string
	Name        string
}

// IdentityFunc resolves a raw advisor id to a canonical identity. A zero
// value means the id is not in the directory; the aggregator then falls back
// to what the event itself carries.
type IdentityFunc func(advisorID string) AdvisorIdentity

// DefaultMinHourSample is the minimum number of calls an hour needs before
// it is reported in the best-time aggregate.
const DefaultMinHourSample = 3

// Aggregate computes the caller-visible metrics from a reconciliation result
// plus the range's call records. identify may be nil when no advisor
// directory is available.
func Aggregate(res MatchResult, calls []CallRecord, identify IdentityFunc, minHourSample int) Metrics {
	if minHourSample <= 0 {
		minHourSample = DefaultMinHourSample
	}

	m := Metrics{
		Overview:      overview(res),
		ByAdvisor:     byAdvisor(res, identify),
		BestTime:      bestTime(calls, minHourSample),
		ForecastCount: len(res.Forecast),
		BackcastCount: len(res.Pairs),
	}

	documented := 0
	for _, pair := range res.Pairs {
		if pair.Matched() {
			documented++
		}
	}
	totalPast := len(res.Pairs)
	m.Funnel = Funnel{
		TotalEvents:    totalPast,
		Documented:     documented,
		CompletionRate: percentage(documented, totalPast),
	}

	return m
}

func overview(res MatchResult) Overview {
	active := len(res.Pairs) + len(res.Forecast)
	canceled := len(res.Canceled)
	total := active + canceled

	subjects := make(map[string]struct{})
	collect := func(events []CalendarEvent) {
		for _, e := range events {
			if email := NormalizeEmail(e.InviteeEmail); email != "" {
				subjects[email] = struct{}{}
			}
		}
	}
	for _, pair := range res.Pairs {
		if email := NormalizeEmail(pair.Event.InviteeEmail); email != "" {
			subjects[email] = struct{}{}
		}
	}
	collect(res.Forecast)
	collect(res.Canceled)

	return Overview{
		TotalEvents:    total,
		ActiveEvents:   active,
		CanceledEvents: canceled,
		UniqueSubjects: len(subjects),
		CancelRate:     percentage(canceled, total),
	}
}

func byAdvisor(res MatchResult, identify IdentityFunc) []AdvisorStats {
	type bucket struct {
		identity  AdvisorIdentity
		planned   int
		completed int
	}
	buckets := make(map[string]*bucket)

	resolve := func(event CalendarEvent) AdvisorIdentity {
		if identify != nil && event.AdvisorID != "" {
			if id := identify(event.AdvisorID); id != (AdvisorIdentity{}) {
				return id
			}
		}
		name := event.HostName
		if name == "" {
			name = "unassigned"
		}
		return AdvisorIdentity{CanonicalID: event.AdvisorID, Name: name}
	}

	track := func(event CalendarEvent, completed bool) {
		identity := resolve(event)
		key := identity.CanonicalID
		if key == "" {
			key = identity.Name
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{identity: identity}
			buckets[key] = b
		}
		b.planned++
		if completed {
			b.completed++
		}
	}

	for _, pair := range res.Pairs {
		track(pair.Event, pair.Matched())
	}
	for _, event := range res.Forecast {
		track(event, false)
	}

	out := make([]AdvisorStats, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, AdvisorStats{
			Advisor:        b.identity.Name,
			AdvisorID:      b.identity.CanonicalID,
			Planned:        b.planned,
			Completed:      b.completed,
			CompletionRate: percentage(b.completed, b.planned),
			Missing:        maxInt(0, b.planned-b.completed),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Planned != out[j].Planned {
			return out[i].Planned > out[j].Planned
		}
		return out[i].Advisor < out[j].Advisor
	})
	return out
}

func bestTime(calls []CallRecord, minSample int) []HourStats {
	var totals, reached [24]int
	for _, call := range calls {
		if call.Direction != "outbound" {
			continue
		}
		hour := call.At.Hour()
		totals[hour]++
		if call.Reached() {
			reached[hour]++
		}
	}

	out := make([]HourStats, 0, 24)
	for hour := 0; hour < 24; hour++ {
		if totals[hour] < minSample {
			continue
		}
		out = append(out, HourStats{
			Hour:        hour,
			TotalCalls:  totals[hour],
			Reached:     reached[hour],
			SuccessRate: percentage(reached[hour], totals[hour]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

// percentage returns numerator/denominator as a percent rounded half-up to
// one decimal place, and 0 for an empty denominator. Decimal arithmetic keeps
// the rounding mode explicit instead of relying on float formatting.
func percentage(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	ratio := decimal.NewFromInt(int64(numerator)).
		Div(decimal.NewFromInt(int64(denominator))).
		Mul(decimal.NewFromInt(100)).
		Round(1)
	value, _ := ratio.Float64()
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
