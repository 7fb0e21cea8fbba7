// Package domain holds the timeline's core types.
package domain

import "time"

// Tier names one of the three independent retrieval categories.
type Tier string

const (
	TierA Tier = "tierA"
	TierB Tier = "tierB"
	TierC Tier = "tierC"
)

// Tiers lists the tiers in their canonical order.
var Tiers = []Tier{TierA, TierB, TierC}

// CandidateDocument is a source document fetched for a date. It is not
// modified after retrieval.
type CandidateDocument struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	BodyText    string    `json:"body_text"`
	SummaryText string    `json:"summary_text,omitempty"`
	Tier        Tier      `json:"tier"`
}

// TieredCandidates holds the per-tier retrieval results for one date.
type TieredCandidates struct {
	TierA []CandidateDocument `json:"tierA"`
	TierB []CandidateDocument `json:"tierB"`
	TierC []CandidateDocument `json:"tierC"`
}

// Get returns the documents for tier.
func (t TieredCandidates) Get(tier Tier) []CandidateDocument {
	switch tier {
	case TierA:
		return t.TierA
	case TierB:
		return t.TierB
	case TierC:
		return t.TierC
	default:
		return nil
	}
}

// Set replaces the documents for tier.
func (t *TieredCandidates) Set(tier Tier, docs []CandidateDocument) {
	switch tier {
	case TierA:
		t.TierA = docs
	case TierB:
		t.TierB = docs
	case TierC:
		t.TierC = docs
	}
}

// Pool flattens the tiers in tier order. Each document carries its tier.
func (t TieredCandidates) Pool() []CandidateDocument {
	pool := make([]CandidateDocument, 0, t.Len())
	for _, tier := range Tiers {
		for _, doc := range t.Get(tier) {
			doc.Tier = tier
			pool = append(pool, doc)
		}
	}
	return pool
}

// Len is the total number of documents across tiers.
func (t TieredCandidates) Len() int {
	return len(t.TierA) + len(t.TierB) + len(t.TierC)
}

// Find returns the document with id from any tier.
func (t TieredCandidates) Find(id string) (CandidateDocument, bool) {
	for _, doc := range t.Pool() {
		if doc.ID == id {
			return doc, true
		}
	}
	return CandidateDocument{}, false
}
