// Package identity resolves advisor aliasing: upstream systems assign a
// human advisor multiple internal ids over time (a local account id plus a
// CRM user id, sometimes several of each), and attribution must group by the
// human, not the id.
package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"example.com/reconciliation/internal/domain"
)

// Advisor is one directory entry. Entries sharing a display name are treated
// as the same human; the lexicographically smallest local id in the group is
// its canonical id.
type Advisor struct {
	ID        string
	Name      string
	CRMUserID string
}

// Directory is an in-memory alias resolver, used in tests and local
// development.
type Directory struct {
	mu       sync.RWMutex
	advisors []Advisor
}

// NewDirectory constructs a Directory with the given entries.
func NewDirectory(advisors ...Advisor) *Directory {
	d := &Directory{}
	d.advisors = append(d.advisors, advisors...)
	return d
}

// Add registers a directory entry.
func (d *Directory) Add(advisor Advisor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advisors = append(d.advisors, advisor)
}

// Resolve implements domain.AliasResolver.
func (d *Directory) Resolve(ctx context.Context, advisorID string) (domain.AliasSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return resolveAlias(d.advisors, advisorID)
}

// Identities implements domain.AliasResolver.
func (d *Directory) Identities(ctx context.Context) (domain.IdentityFunc, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return identityIndex(d.advisors), nil
}

// resolveAlias finds the advisor by local or CRM id and expands to the full
// set of ids sharing the person.
func resolveAlias(advisors []Advisor, advisorID string) (domain.AliasSet, error) {
	var found *Advisor
	for i := range advisors {
		if advisors[i].ID == advisorID || (advisors[i].CRMUserID != "" && advisors[i].CRMUserID == advisorID) {
			found = &advisors[i]
			break
		}
	}
	if found == nil {
		return domain.AliasSet{}, fmt.Errorf("%w: %q", domain.ErrUnknownAdvisor, advisorID)
	}

	set := domain.AliasSet{Name: found.Name}
	for _, a := range advisors {
		if a.Name != found.Name {
			continue
		}
		if set.CanonicalID == "" || a.ID < set.CanonicalID {
			set.CanonicalID = a.ID
		}
		set.IDs = append(set.IDs, a.ID)
		if a.CRMUserID != "" {
			set.IDs = append(set.IDs, a.CRMUserID)
		}
	}
	sort.Strings(set.IDs)
	return set, nil
}

// identityIndex builds a snapshot lookup from every known id to its
// canonical identity.
func identityIndex(advisors []Advisor) domain.IdentityFunc {
	canonical := make(map[string]string, len(advisors))
	for _, a := range advisors {
		current, ok := canonical[a.Name]
		if !ok || a.ID < current {
			canonical[a.Name] = a.ID
		}
	}

	index := make(map[string]domain.AdvisorIdentity, len(advisors)*2)
	for _, a := range advisors {
		identity := domain.AdvisorIdentity{CanonicalID: canonical[a.Name], Name: a.Name}
		index[a.ID] = identity
		if a.CRMUserID != "" {
			index[a.CRMUserID] = identity
		}
	}

	return func(advisorID string) domain.AdvisorIdentity {
		return index[advisorID]
	}
}
