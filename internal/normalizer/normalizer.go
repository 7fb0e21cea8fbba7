// Package normalizer maps identifiers returned by judges back onto the
// candidate pool they were shown.
package normalizer

import (
	"strings"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// minContainmentLen keeps fragments such as "https" or a bare host suffix
// from matching every candidate.
const minContainmentLen = 12

// Resolve maps raw onto a document id in pool. It tries, in order: exact id,
// exact URL, normalised URL, and containment between normalised URLs in
// either direction. The earliest matching document wins at each step.
func Resolve(raw string, pool []domain.CandidateDocument) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	for _, doc := range pool {
		if doc.ID == raw {
			return doc.ID, true
		}
	}
	for _, doc := range pool {
		if doc.URL != "" && doc.URL == raw {
			return doc.ID, true
		}
	}

	norm := NormalizeURL(raw)
	if norm == "" {
		return "", false
	}
	for _, doc := range pool {
		if doc.URL != "" && NormalizeURL(doc.URL) == norm {
			return doc.ID, true
		}
	}
	for _, doc := range pool {
		if doc.URL == "" {
			continue
		}
		docNorm := NormalizeURL(doc.URL)
		if len(docNorm) < minContainmentLen || len(norm) < minContainmentLen {
			continue
		}
		if strings.Contains(docNorm, norm) || strings.Contains(norm, docNorm) {
			return doc.ID, true
		}
	}
	return "", false
}

// ResolveAll resolves each raw value, dropping misses and duplicates. The
// result follows pool order. misses counts values that did not resolve.
func ResolveAll(raws []string, pool []domain.CandidateDocument) (ids []string, misses int) {
	hit := make(map[string]bool, len(raws))
	for _, raw := range raws {
		id, ok := Resolve(raw, pool)
		if !ok {
			misses++
			continue
		}
		hit[id] = true
	}

	ids = make([]string, 0, len(hit))
	for _, doc := range pool {
		if hit[doc.ID] {
			ids = append(ids, doc.ID)
			delete(hit, doc.ID)
		}
	}
	return ids, misses
}

// NormalizeURL lower-cases u and removes the fragment, query string and
// trailing slashes.
func NormalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return strings.TrimRight(u, "/")
}
