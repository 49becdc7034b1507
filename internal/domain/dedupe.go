package domain

import "sort"

// DedupeResult carries the surviving records plus a count of rows that could
// not be grouped because they were missing a subject id or category. Skipped
// rows are reported, never merged into a wrong group.
type DedupeResult struct {
	Records []ActivityRecord
	Skipped int
}

// Deduplicate collapses activity records down to the most recently created
// record per (subject id, category) pair. The CRM re-logs an activity every
// time its result field is edited, so older rows for the same pair are
// superseded duplicates and must be excluded from all counts.
//
// Ties on the creation timestamp are broken by the lexicographically larger
// external id so the survivor is deterministic. Output order is stable for a
// fixed input: sorted by subject id, then category.
func Deduplicate(records []ActivityRecord) DedupeResult {
	type pairKey struct {
		subject  string
		category string
	}

	latest := make(map[pairKey]ActivityRecord, len(records))
	skipped := 0

	for _, rec := range records {
		if rec.SubjectID == "" || rec.Category == "" {
			skipped++
			continue
		}
		key := pairKey{subject: rec.SubjectID, category: rec.Category}
		current, ok := latest[key]
		if !ok || supersedes(rec, current) {
			latest[key] = rec
		}
	}

	out := make([]ActivityRecord, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubjectID != out[j].SubjectID {
			return out[i].SubjectID < out[j].SubjectID
		}
		return out[i].Category < out[j].Category
	})

	return DedupeResult{Records: out, Skipped: skipped}
}

// supersedes reports whether candidate replaces current within a dedupe group.
func supersedes(candidate, current ActivityRecord) bool {
	if candidate.CreatedAt.After(current.CreatedAt) {
		return true
	}
	if candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.ID > current.ID
	}
	return false
}
