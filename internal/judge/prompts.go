package judge

import (
	"fmt"
	"strings"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

const (
	relevanceSystem = "You are a meticulous historian curating a day-by-day timeline. " +
		"You answer only with JSON."
	tieBreakSystem = "You choose the single most significant event for a historical timeline. " +
		"You answer only with JSON."
	duplicateSystem = "You compare short historical event descriptions. You answer only with JSON."
	generatorSystem = "You write one-line timeline entries in the present tense and active voice."
)

// excerptLen bounds how much body text each candidate contributes to a prompt.
const excerptLen = 600

func relevancePrompt(date string, docs []domain.CandidateDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n\n", date)
	b.WriteString("Below are candidate news documents. Return the ids of documents that describe ")
	b.WriteString("an event that actually happened on this date. Ignore previews, anniversaries, ")
	b.WriteString("opinion pieces and retrospectives of earlier events.\n\n")
	writeDocs(&b, docs)
	b.WriteString("\nRespond with {\"selected_ids\": [...]}. Use an empty list when none qualify.")
	return b.String()
}

func tieBreakPrompt(date string, docs []domain.CandidateDocument, rubric []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n\n", date)
	b.WriteString("Several documents were judged relevant for this date. Pick exactly one.\n")
	if len(rubric) > 0 {
		b.WriteString("Prefer topics higher in this priority list:\n")
		for i, topic := range rubric {
			fmt.Fprintf(&b, "%d. %s\n", i+1, topic)
		}
	}
	b.WriteString("\n")
	writeDocs(&b, docs)
	b.WriteString("\nRespond with {\"id\": \"<document id>\"}.")
	return b.String()
}

func duplicatePrompt(source string, candidates []string) string {
	var b strings.Builder
	b.WriteString("Source event:\n")
	b.WriteString(source)
	b.WriteString("\n\nCandidate events:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, c)
	}
	b.WriteString("\nWhich candidates describe the exact same specific event as the source? ")
	b.WriteString("Related events are not duplicates: the same actor doing something different, ")
	b.WriteString("a cause and its reaction, or follow-up coverage of consequences must NOT be returned.\n")
	b.WriteString("Respond with {\"matches\": [indices]}. Use an empty list when there are none.")
	return b.String()
}

func writeDocs(b *strings.Builder, docs []domain.CandidateDocument) {
	for _, doc := range docs {
		fmt.Fprintf(b, "id: %s\ntitle: %s\n", doc.ID, doc.Title)
		if doc.URL != "" {
			fmt.Fprintf(b, "url: %s\n", doc.URL)
		}
		text := doc.SummaryText
		if text == "" {
			text = doc.BodyText
		}
		if text != "" {
			fmt.Fprintf(b, "excerpt: %s\n", excerpt(text))
		}
		b.WriteString("---\n")
	}
}

func excerpt(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= excerptLen {
		return string(r)
	}
	return string(r[:excerptLen]) + "..."
}
