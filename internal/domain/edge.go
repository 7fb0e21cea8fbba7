package domain

import "fmt"

// DuplicateEdge links two dates judged to describe the same event. DateA is
// always the earlier date.
type DuplicateEdge struct {
	DateA     string `json:"date_a" db:"date_a"`
	DateB     string `json:"date_b" db:"date_b"`
	ClusterID string `json:"cluster_id,omitempty" db:"cluster_id"`
}

// NewEdge orders a and b canonically. Self-loops are rejected.
func NewEdge(a, b string) (DuplicateEdge, error) {
	if a == b {
		return DuplicateEdge{}, fmt.Errorf("%w: edge endpoints are both %s", ErrEmptyInput, a)
	}
	if b < a {
		a, b = b, a
	}
	return DuplicateEdge{DateA: a, DateB: b}, nil
}

// ID identifies the unordered pair.
func (e DuplicateEdge) ID() string {
	return e.DateA + "|" + e.DateB
}

// Cluster is a connected component of duplicate edges.
type Cluster struct {
	ClusterID     string   `json:"cluster_id"`
	MemberDates   []string `json:"member_dates"`
	MemberEdgeIDs []string `json:"member_edge_ids"`
}
