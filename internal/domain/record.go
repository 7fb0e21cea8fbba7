package domain

import "time"

// ResolutionMode is the outcome of consensus selection for a date.
type ResolutionMode string

const (
	// ModeUnresolved marks a record that has candidates but no selection run yet.
	ModeUnresolved        ResolutionMode = ""
	ModeResolved          ResolutionMode = "Resolved"
	ModeNoAgreement       ResolutionMode = "RequiresSelection-NoAgreement"
	ModeMultipleAgreement ResolutionMode = "RequiresSelection-MultipleAgreement"
)

// VerdictStatus is the outcome of one judge call.
type VerdictStatus string

const (
	VerdictSuccess   VerdictStatus = "success"
	VerdictNoMatches VerdictStatus = "noMatches"
	VerdictError     VerdictStatus = "error"
)

// JudgeVerdict is a judge's normalised vote as persisted on the record.
type JudgeVerdict struct {
	SelectedIDs []string      `json:"selected_ids"`
	Status      VerdictStatus `json:"status"`
	// Reason explains an error status.
	Reason string `json:"reason,omitempty"`
	// Unattributed counts raw ids that did not resolve to a candidate.
	Unattributed int `json:"unattributed,omitempty"`
}

// TieBreak records how a multi-agreement was narrowed down.
type TieBreak struct {
	Used         bool          `json:"used"`
	FallbackUsed bool          `json:"fallback_used"`
	ChosenID     string        `json:"chosen_id,omitempty"`
	Status       VerdictStatus `json:"status,omitempty"`
}

// FactCheck is written by a later verification pass.
type FactCheck struct {
	Verdict    string   `json:"verdict,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Citations  []string `json:"citations,omitempty"`
}

// Flag marks a record for human review.
type Flag struct {
	IsFlagged bool   `json:"is_flagged"`
	Reason    string `json:"reason,omitempty"`
}

// DailyRecord is the timeline entry for one calendar date.
type DailyRecord struct {
	Date               string                  `json:"date"`
	TieredCandidates   TieredCandidates        `json:"tiered_candidates"`
	SelectedDocumentID string                  `json:"selected_document_id,omitempty"`
	SelectedTier       Tier                    `json:"selected_tier,omitempty"`
	GeneratedText      string                  `json:"generated_text,omitempty"`
	JudgeVerdicts      map[string]JudgeVerdict `json:"judge_verdicts,omitempty"`
	ResolutionMode     ResolutionMode          `json:"resolution_mode"`
	JudgeError         bool                    `json:"judge_error"`
	TieBreak           TieBreak                `json:"tie_break"`
	// ProposedDocumentID is the tie-break pick awaiting confirmation.
	ProposedDocumentID  string    `json:"proposed_document_id,omitempty"`
	GenerationViolation bool      `json:"generation_violation"`
	FactCheck           FactCheck `json:"fact_check"`
	ClusterID           string    `json:"cluster_id,omitempty"`
	Flag                Flag      `json:"flag"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Resolution is the result of consensus selection.
type Resolution struct {
	Mode               ResolutionMode
	SelectedDocumentID string
	SelectedTier       Tier
	ProposedDocumentID string
	Verdicts           map[string]JudgeVerdict
	JudgeError         bool
	TieBreak           TieBreak
	// Agreed is the intersection of the two judges, in pool order.
	Agreed []string
}

// ApplyResolution copies r onto the record, keeping the invariant that a
// selected document exists only for Resolved records.
func (d *DailyRecord) ApplyResolution(r Resolution) {
	d.ResolutionMode = r.Mode
	d.JudgeVerdicts = r.Verdicts
	d.JudgeError = r.JudgeError
	d.TieBreak = r.TieBreak
	d.ProposedDocumentID = r.ProposedDocumentID

	if r.Mode == ModeResolved {
		d.SelectedDocumentID = r.SelectedDocumentID
		d.SelectedTier = r.SelectedTier
		return
	}
	d.SelectedDocumentID = ""
	d.SelectedTier = ""
	d.GeneratedText = ""
}

// SelectedDocument returns the selected candidate, if any.
func (d *DailyRecord) SelectedDocument() (CandidateDocument, bool) {
	if d.SelectedDocumentID == "" {
		return CandidateDocument{}, false
	}
	return d.TieredCandidates.Find(d.SelectedDocumentID)
}
