package matcher

import (
	"context"
	"sort"
)

// Candidate is a single ranked match returned by the matching service.
type Candidate struct {
	ID            string
	Name          string
	LocalizedName string
	Category      string
	// Score is a similarity percentage in [0,100].
	Score    float64
	ImageURL string
}

// ResultSet is the ordered candidate list of one successful submission, best match first.
type ResultSet []Candidate

// Best returns the top candidate. It panics on an empty set, which never
// reaches a successful outcome.
func (rs ResultSet) Best() Candidate {
	return rs[0]
}

// Rank returns a copy of candidates ordered by descending score. Equal scores
// keep the order the service returned them in.
func Rank(candidates []Candidate) ResultSet {
	ranked := make(ResultSet, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Client exposes the matching call used by the capture workflow.
// Expected failures are returned as *Failure, never as panics. Results need not
// be ordered; callers rank them.
type Client interface {
	Submit(ctx context.Context, image CapturedImage) (ResultSet, error)
}
