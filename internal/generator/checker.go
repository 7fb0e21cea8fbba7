package generator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/text/unicode/norm"
)

// Default bounds for a timeline description.
const (
	DefaultMinLength = 100
	DefaultMaxLength = 110
	DefaultMaxRounds = 3
)

var dateWords = []string{
	"january", "february", "april", "june", "july", "august", "september",
	"october", "november", "december",
	"jan", "feb", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"today", "yesterday", "tomorrow",
}

// "may" and "march" are ordinary words unless next to a number.
var (
	ambiguousMonthRe = regexp.MustCompile(`(?i)\b(?:may|march|mar)\s+\d{1,2}\b|\b\d{1,2}\s+(?:may|march|mar)\b`)
	numericDateRe    = regexp.MustCompile(`\b\d{1,4}[/\-]\d{1,2}(?:[/\-]\d{1,4})?\b|\b\d{1,2}\.\d{1,2}\.\d{2,4}\b`)
	ordinalRe        = regexp.MustCompile(`(?i)\b\d+(?:st|nd|rd|th)\b`)
)

// A bare four-digit number is a count ("1500 troops") unless a time word or
// month precedes it or it is a decade or possessive ("1970s", "1999's").
var yearRe = regexp.MustCompile(`(?i)\b(?:in|since|until|till|during|circa|year|` +
	`jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|` +
	`sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?,?\s+((?:1[0-9]{3}|20[0-9]{2}))\b` +
	`|\b((?:1[0-9]{3}|20[0-9]{2})'?s)\b`)

// Simple past only. Forms shared with the participle ("announced") also read
// as adjectives or present perfect and are not listed.
var pastTenseWords = []string{"was", "were", "had", "did", "became"}

// wordMatcher finds whole words from a fixed dictionary.
type wordMatcher struct {
	words   []string
	matcher *ahocorasick.Matcher
}

func newWordMatcher(words []string) *wordMatcher {
	padded := make([]string, len(words))
	for i, w := range words {
		padded[i] = " " + w + " "
	}
	return &wordMatcher{words: words, matcher: ahocorasick.NewStringMatcher(padded)}
}

// find returns the dictionary words present in text.
func (m *wordMatcher) find(text string) []string {
	hits := m.matcher.Match([]byte(wordFold(text)))
	out := make([]string, 0, len(hits))
	for _, i := range hits {
		out = append(out, m.words[i])
	}
	return out
}

// wordFold lower-cases text and turns every non-letter into a space so padded
// dictionary entries only match whole words.
func wordFold(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteByte(' ')
	return b.String()
}

// Checker validates description text.
type Checker struct {
	min, max int
	dates    *wordMatcher
	past     *wordMatcher
}

// NewChecker builds a checker for the inclusive length bound [min, max].
func NewChecker(minLength, maxLength int) *Checker {
	return &Checker{
		min:   minLength,
		max:   maxLength,
		dates: newWordMatcher(dateWords),
		past:  newWordMatcher(pastTenseWords),
	}
}

// Length counts characters after NFC normalisation.
func Length(text string) int {
	return utf8.RuneCountInString(norm.NFC.String(text))
}

// Check implements CheckFunc.
func (c *Checker) Check(text string) Check {
	res := Check{Length: Length(text)}
	switch {
	case res.Length < c.min:
		res.Direction, res.Distance = DirectionExpand, c.min-res.Length
	case res.Length > c.max:
		res.Direction, res.Distance = DirectionShrink, res.Length-c.max
	}

	if tokens := c.DateTokens(text); len(tokens) > 0 {
		res.Problems = append(res.Problems, fmt.Sprintf("remove date references: %s", strings.Join(tokens, ", ")))
	}
	if words := c.past.find(text); len(words) > 0 {
		res.Problems = append(res.Problems, fmt.Sprintf("use present tense instead of: %s", strings.Join(words, ", ")))
	}
	if r, _ := utf8.DecodeLastRuneInString(strings.TrimSpace(text)); r != utf8.RuneError && unicode.IsPunct(r) {
		res.Problems = append(res.Problems, "do not end with punctuation")
	}
	return res
}

// DateTokens returns the calendar-date tokens found in text.
func (c *Checker) DateTokens(text string) []string {
	tokens := c.dates.find(text)
	tokens = append(tokens, ambiguousMonthRe.FindAllString(text, -1)...)
	for _, m := range yearRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			tokens = append(tokens, m[1])
		} else {
			tokens = append(tokens, m[2])
		}
	}
	for _, re := range []*regexp.Regexp{numericDateRe, ordinalRe} {
		tokens = append(tokens, re.FindAllString(text, -1)...)
	}
	return tokens
}
