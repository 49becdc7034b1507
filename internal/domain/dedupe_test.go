package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2026, time.March, n, 12, 0, 0, 0, time.UTC)
}

func TestDeduplicateKeepsNewestPerSubjectAndCategory(t *testing.T) {
	records := []ActivityRecord{
		{ID: "act-1", SubjectID: "lead-1", Category: CategoryInitialCall, CreatedAt: day(1)},
		{ID: "act-2", SubjectID: "lead-1", Category: CategoryInitialCall, CreatedAt: day(2)},
		{ID: "act-3", SubjectID: "lead-1", Category: CategoryInitialCall, CreatedAt: day(3)},
	}

	result := Deduplicate(records)

	require.Len(t, result.Records, 1)
	require.Equal(t, "act-3", result.Records[0].ID)
	require.Zero(t, result.Skipped)
}

func TestDeduplicateSeparatesCategories(t *testing.T) {
	records := []ActivityRecord{
		{ID: "act-1", SubjectID: "lead-1", Category: CategoryInitialCall, CreatedAt: day(1)},
		{ID: "act-2", SubjectID: "lead-1", Category: CategoryConceptMeeting, CreatedAt: day(1)},
		{ID: "act-3", SubjectID: "lead-2", Category: CategoryInitialCall, CreatedAt: day(1)},
	}

	result := Deduplicate(records)

	require.Len(t, result.Records, 3)
}

func TestDeduplicateBreaksTimestampTiesByLargerID(t *testing.T) {
	records := []ActivityRecord{
		{ID: "act-b", SubjectID: "lead-1", Category: CategoryServiceCall, CreatedAt: day(5)},
		{ID: "act-a", SubjectID: "lead-1", Category: CategoryServiceCall, CreatedAt: day(5)},
	}

	result := Deduplicate(records)

	require.Len(t, result.Records, 1)
	require.Equal(t, "act-b", result.Records[0].ID)
}

func TestDeduplicateSkipsMalformedRecords(t *testing.T) {
	records := []ActivityRecord{
		{ID: "act-1", SubjectID: "", Category: CategoryInitialCall, CreatedAt: day(1)},
		{ID: "act-2", SubjectID: "lead-1", Category: "", CreatedAt: day(1)},
		{ID: "act-3", SubjectID: "lead-1", Category: CategoryInitialCall, CreatedAt: day(1)},
	}

	result := Deduplicate(records)

	require.Len(t, result.Records, 1)
	require.Equal(t, "act-3", result.Records[0].ID)
	require.Equal(t, 2, result.Skipped)
}

func TestDeduplicateIsIdempotent(t *testing.T) {
	records := []ActivityRecord{
		{ID: "act-1", SubjectID: "lead-2", Category: CategoryInitialCall, CreatedAt: day(1)},
		{ID: "act-2", SubjectID: "lead-1", Category: CategoryInitialCall, CreatedAt: day(2)},
		{ID: "act-3", SubjectID: "lead-1", Category: CategoryInitialCall, CreatedAt: day(4)},
		{ID: "act-4", SubjectID: "lead-1", Category: CategoryConceptMeeting, CreatedAt: day(3)},
	}

	first := Deduplicate(records)
	second := Deduplicate(first.Records)

	require.Equal(t, first.Records, second.Records)
	require.Zero(t, second.Skipped)
}

func TestDeduplicateOutputOrderIsStable(t *testing.T) {
	records := []ActivityRecord{
		{ID: "act-1", SubjectID: "lead-2", Category: CategoryServiceCall, CreatedAt: day(1)},
		{ID: "act-2", SubjectID: "lead-1", Category: CategoryServiceCall, CreatedAt: day(1)},
		{ID: "act-3", SubjectID: "lead-1", Category: CategoryConceptMeeting, CreatedAt: day(1)},
	}

	result := Deduplicate(records)

	require.Equal(t, []string{"act-3", "act-2", "act-1"}, []string{
		result.Records[0].ID, result.Records[1].ID, result.Records[2].ID,
	})
}

func TestDeduplicateEmptyInput(t *testing.T) {
	result := Deduplicate(nil)
	require.Empty(t, result.Records)
	require.Zero(t, result.Skipped)
}
