package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/reconciliation/internal/domain"
)

func testDirectory() *Directory {
	return NewDirectory(
		Advisor{ID: "adv-1", Name: "Jordan Weiss", CRMUserID: "crm-77"},
		Advisor{ID: "adv-9", Name: "Jordan Weiss"},
		Advisor{ID: "adv-2", Name: "Sam Okafor", CRMUserID: "crm-12"},
	)
}

func TestResolveExpandsSharedName(t *testing.T) {
	dir := testDirectory()

	set, err := dir.Resolve(context.Background(), "adv-9")

	require.NoError(t, err)
	require.Equal(t, "adv-1", set.CanonicalID)
	require.Equal(t, "Jordan Weiss", set.Name)
	require.Equal(t, []string{"adv-1", "adv-9", "crm-77"}, set.IDs)
}

func TestResolveByCRMUserID(t *testing.T) {
	dir := testDirectory()

	set, err := dir.Resolve(context.Background(), "crm-77")

	require.NoError(t, err)
	require.Equal(t, "adv-1", set.CanonicalID)
}

func TestResolveUnknownAdvisor(t *testing.T) {
	dir := testDirectory()

	_, err := dir.Resolve(context.Background(), "nobody")

	require.ErrorIs(t, err, domain.ErrUnknownAdvisor)
}

func TestIdentitiesCoverAllKnownIDs(t *testing.T) {
	dir := testDirectory()

	identify, err := dir.Identities(context.Background())
	require.NoError(t, err)

	for _, id := range []string{"adv-1", "adv-9", "crm-77"} {
		got := identify(id)
		require.Equal(t, "adv-1", got.CanonicalID, "id %s", id)
		require.Equal(t, "Jordan Weiss", got.Name)
	}
	require.Equal(t, "adv-2", identify("crm-12").CanonicalID)
	require.Equal(t, domain.AdvisorIdentity{}, identify("nobody"))
}

func TestAddExtendsDirectory(t *testing.T) {
	dir := NewDirectory()
	dir.Add(Advisor{ID: "adv-3", Name: "Lena Vogt"})

	set, err := dir.Resolve(context.Background(), "adv-3")

	require.NoError(t, err)
	require.Equal(t, "adv-3", set.CanonicalID)
	require.Equal(t, []string{"adv-3"}, set.IDs)
}
