package export

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/gingfrederik/docx"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// ReviewItem is a date that needs a human decision.
type ReviewItem struct {
	Date     string
	Mode     domain.ResolutionMode
	Notes    []string
	Proposed *domain.CandidateDocument
	Agreed   []domain.CandidateDocument
}

// Notes lists why rec needs attention. A resolved, unflagged record with a
// clean description has none.
func Notes(rec *domain.DailyRecord) []string {
	var notes []string
	switch rec.ResolutionMode {
	case domain.ModeUnresolved:
		notes = append(notes, "selection did not run")
	case domain.ModeNoAgreement:
		notes = append(notes, "judges did not agree")
	case domain.ModeMultipleAgreement:
		notes = append(notes, "judges agreed on several documents")
	case domain.ModeResolved:
	}
	if rec.JudgeError {
		notes = append(notes, "both judges failed")
	}
	if rec.TieBreak.FallbackUsed {
		notes = append(notes, "tie-break fell back")
	}
	if rec.GenerationViolation {
		if rec.GeneratedText == "" {
			notes = append(notes, "description generation failed")
		} else {
			notes = append(notes, "description is outside the length bounds")
		}
	}
	if rec.Flag.IsFlagged {
		reason := rec.Flag.Reason
		if reason == "" {
			reason = "no reason given"
		}
		notes = append(notes, "flagged: "+reason)
	}
	return notes
}

// ReviewItems selects the records that need attention, in input order.
func ReviewItems(recs []domain.DailyRecord) []ReviewItem {
	var items []ReviewItem
	for i := range recs {
		rec := &recs[i]
		notes := Notes(rec)
		if len(notes) == 0 {
			continue
		}
		item := ReviewItem{Date: rec.Date, Mode: rec.ResolutionMode, Notes: notes}
		if rec.ProposedDocumentID != "" {
			if doc, ok := rec.TieredCandidates.Find(rec.ProposedDocumentID); ok {
				item.Proposed = &doc
			}
		}
		for _, name := range slices.Sorted(maps.Keys(rec.JudgeVerdicts)) {
			v := rec.JudgeVerdicts[name]
			if v.Status != domain.VerdictSuccess {
				continue
			}
			for _, id := range v.SelectedIDs {
				if doc, ok := rec.TieredCandidates.Find(id); ok && !containsDoc(item.Agreed, id) {
					item.Agreed = append(item.Agreed, doc)
				}
			}
		}
		items = append(items, item)
	}
	return items
}

func containsDoc(docs []domain.CandidateDocument, id string) bool {
	for _, d := range docs {
		if d.ID == id {
			return true
		}
	}
	return false
}

// ReviewReport writes a DOCX report of the records needing attention to path
// and returns the items it contains.
func ReviewReport(path string, recs []domain.DailyRecord, generatedAt time.Time) ([]ReviewItem, error) {
	items := ReviewItems(recs)
	f := docx.NewFile()

	title := f.AddParagraph().AddText("Timeline Review Report")
	title.Size(20)
	meta := f.AddParagraph().AddText(fmt.Sprintf("Generated %s | %d of %d days need review",
		generatedAt.UTC().Format(time.RFC3339), len(items), len(recs)))
	meta.Size(10)
	meta.Color("808080")
	f.AddParagraph()

	for _, item := range items {
		heading := f.AddParagraph().AddText(item.Date)
		heading.Size(16)

		for _, note := range item.Notes {
			f.AddParagraph().AddText("- " + note)
		}
		if item.Proposed != nil {
			run := f.AddParagraph().AddText(fmt.Sprintf("Proposed: %s (%s)", item.Proposed.Title, item.Proposed.Tier))
			run.Color("008000")
		}
		for _, doc := range item.Agreed {
			run := f.AddParagraph().AddText(fmt.Sprintf("Candidate %s: %s", doc.ID, doc.Title))
			run.Size(10)
			if doc.URL != "" {
				link := f.AddParagraph().AddText(doc.URL)
				link.Size(10)
				link.Color("0000FF")
			}
		}
		f.AddParagraph().AddText("--------------------------------------------------")
	}

	if err := f.Save(path); err != nil {
		return nil, fmt.Errorf("failed to save review report: %w", err)
	}
	return items, nil
}
