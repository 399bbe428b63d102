package entity

import (
	"regexp"
	"strings"
	"time"
)

var (
	ticketPattern     = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,9}-\d+\b`)
	quotedPattern     = regexp.MustCompile(`"([^"]{2,80})"`)
	urlPattern        = regexp.MustCompile(`\bhttps?://[^\s<>"']+`)
	capitalizedPhrase = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*){1,3})\b`)
	deadlinePattern   = regexp.MustCompile(`\b(?:by|before|due)\s+((?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?|\d{4}-\d{2}-\d{2}|next\s+\w+|tomorrow|today|end of (?:day|week|month|quarter))\b`)
)

// technologyVocabulary is a small closed set of domain keywords recognized as
// technologies. Extending it is a config/data change, not a code change.
var technologyVocabulary = map[string]bool{
	"kubernetes": true, "docker": true, "terraform": true, "postgres": true,
	"redis": true, "kafka": true, "grpc": true, "graphql": true, "react": true,
	"golang": true, "python": true, "typescript": true, "aws": true, "azure": true,
	"gcp": true, "openai": true, "anthropic": true, "claude": true, "bedrock": true,
}

const extractionMethodPattern = "pattern"

// ExtractPatternEntities runs regex/heuristic extraction over text. It is
// in-process and performs no I/O, per spec.md §4.2.
func ExtractPatternEntities(text, conversationID, context string, now time.Time) []Entity {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []Entity

	for _, m := range ticketPattern.FindAllString(text, -1) {
		out = append(out, NewEntity(TypeJiraTicket, m, context, conversationID, 0.8, extractionMethodPattern, now))
	}

	for _, m := range urlPattern.FindAllString(text, -1) {
		out = append(out, NewEntity(TypeURL, m, context, conversationID, 0.6, extractionMethodPattern, now))
	}

	for _, groups := range deadlinePattern.FindAllStringSubmatch(text, -1) {
		if len(groups) > 1 {
			out = append(out, NewEntity(TypeDeadline, groups[1], context, conversationID, 0.7, extractionMethodPattern, now))
		}
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, NewEntity(TypeDocument, m[1], context, conversationID, 0.5, extractionMethodPattern, now))
	}

	for _, word := range strings.Fields(text) {
		lower := strings.ToLower(strings.Trim(word, ".,!?:;()"))
		if technologyVocabulary[lower] {
			out = append(out, NewEntity(TypeTechnology, lower, context, conversationID, 0.55, extractionMethodPattern, now))
		}
	}

	for _, m := range capitalizedPhrase.FindAllString(text, -1) {
		if ticketPattern.MatchString(m) {
			continue
		}
		out = append(out, NewEntity(classifyCapitalizedPhrase(m), m, context, conversationID, 0.4, extractionMethodPattern, now))
	}

	return out
}

// classifyCapitalizedPhrase guesses whether a capitalized multiword span
// names a person or a project, defaulting to "other". This is a cheap
// heuristic, not an NER model: two capitalized words with no digits reads
// more like a person's name; anything else is a project name candidate.
func classifyCapitalizedPhrase(phrase string) Type {
	words := strings.Fields(phrase)
	if len(words) == 2 && !strings.ContainsAny(phrase, "0123456789") {
		return TypePerson
	}
	return TypeProject
}

// ExtractSearchKeywords pulls ticket ids, quoted phrases, and capitalized
// words out of free text to drive entity search (spec.md §4.3 step 5),
// filtered through a small stoplist and capped at the given limit.
func ExtractSearchKeywords(text string, limit int) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if stoplist[key] {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		if len(out) >= limit {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}

	for _, m := range ticketPattern.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range capitalizedPhrase.FindAllString(text, -1) {
		add(m)
	}
	for _, word := range strings.Fields(text) {
		trimmed := strings.Trim(word, ".,!?:;()\"'")
		if len(trimmed) > 0 && trimmed[0] >= 'A' && trimmed[0] <= 'Z' {
			add(trimmed)
		}
	}

	return out
}

var stoplist = map[string]bool{
	"the": true, "a": true, "an": true, "i": true, "you": true, "what": true,
	"is": true, "are": true, "was": true, "were": true, "this": true, "that": true,
	"hey": true, "hi": true, "hello": true, "please": true, "thanks": true,
}
