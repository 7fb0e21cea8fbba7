// Package duplicates finds timeline entries that describe the same event on
// nearby dates and groups them into clusters.
package duplicates

import (
	"sort"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// BuildClusters groups edges into connected components. Each cluster is
// identified by its smallest date; members, edge ids and the clusters
// themselves are sorted, so the result depends only on the edge set.
func BuildClusters(edges []domain.DuplicateEdge) []domain.Cluster {
	adj := make(map[string][]string)
	byID := make(map[string]domain.DuplicateEdge, len(edges))
	for _, e := range edges {
		if e.DateA == e.DateB {
			continue
		}
		canon, err := domain.NewEdge(e.DateA, e.DateB)
		if err != nil {
			continue
		}
		if _, seen := byID[canon.ID()]; seen {
			continue
		}
		byID[canon.ID()] = canon
		adj[canon.DateA] = append(adj[canon.DateA], canon.DateB)
		adj[canon.DateB] = append(adj[canon.DateB], canon.DateA)
	}

	nodes := make([]string, 0, len(adj))
	for d := range adj {
		nodes = append(nodes, d)
	}
	sort.Strings(nodes)

	visited := make(map[string]bool, len(nodes))
	var clusters []domain.Cluster
	for _, root := range nodes {
		if visited[root] {
			continue
		}

		members := []string{}
		stack := []string{root}
		visited[root] = true
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			members = append(members, n)
			for _, next := range adj[n] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		sort.Strings(members)

		inCluster := make(map[string]bool, len(members))
		for _, m := range members {
			inCluster[m] = true
		}
		edgeIDs := []string{}
		for id, e := range byID {
			if inCluster[e.DateA] {
				edgeIDs = append(edgeIDs, id)
			}
		}
		sort.Strings(edgeIDs)

		clusters = append(clusters, domain.Cluster{
			ClusterID:     members[0],
			MemberDates:   members,
			MemberEdgeIDs: edgeIDs,
		})
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ClusterID < clusters[j].ClusterID })
	return clusters
}

// Stamps maps every date in dates to its cluster id, or "" when the date is
// not part of any cluster.
func Stamps(clusters []domain.Cluster, dates []string) map[string]string {
	out := make(map[string]string, len(dates))
	for _, d := range dates {
		out[d] = ""
	}
	for _, c := range clusters {
		for _, d := range c.MemberDates {
			out[d] = c.ClusterID
		}
	}
	return out
}
