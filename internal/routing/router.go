package routing

import (
	"errors"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
)

// maxCandidateFailures excludes providers that already failed this many times in a row.
const maxCandidateFailures = 2

// ErrNoCandidate is returned when no provider qualifies for failover.
var ErrNoCandidate = errors.New("no failover candidate")

// RecentSelector picks the most recently used healthy provider.
type RecentSelector struct{}

// NewRouter creates a new failover selector.
func NewRouter() *RecentSelector {
	return &RecentSelector{}
}

// Select returns the id of the most recently used candidate other than exclude
// that has a credential, is connected and has fewer than two consecutive
// failures. Candidates are expected in catalog order, which breaks ties.
func (r *RecentSelector) Select(candidates []domain.Provider, exclude string) (string, error) {
	best := -1

	for i, p := range candidates {
		if !eligible(p, exclude) {
			continue
		}

		if best < 0 || p.LastUsedAt.After(candidates[best].LastUsedAt) {
			best = i
		}
	}

	if best < 0 {
		return "", ErrNoCandidate
	}

	return candidates[best].ID, nil
}

func eligible(p domain.Provider, exclude string) bool {
	return p.ID != exclude &&
		p.HasCredential &&
		p.Status == domain.StatusConnected &&
		p.ConsecutiveFailures < maxCandidateFailures
}
