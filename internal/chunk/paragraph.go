package chunk

import "regexp"

var paragraphSepRe = regexp.MustCompile(`\n[ \t]*\n[ \t\n]*`)

// splitParagraphs partitions text at blank-line boundaries. The atomic unit
// for PARAGRAPH packing is the paragraph; for a paragraph that alone
// exceeds the chunk budget, the caller recursively falls back to
// FIXED_SIZE.
func splitParagraphs(text string) []unit {
	locs := paragraphSepRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []unit{{text: text, start: 0, end: len(text)}}
	}
	var units []unit
	cursor := 0
	for _, loc := range locs {
		if loc[0] > cursor {
			units = append(units, unit{text: text[cursor:loc[0]], start: cursor, end: loc[0]})
		}
		cursor = loc[1]
	}
	if cursor < len(text) {
		units = append(units, unit{text: text[cursor:], start: cursor, end: len(text)})
	}
	return units
}

// sentenceEndRe matches the longest run up to and including a sentence
// terminator, mirroring the spec's "longest match ending with . ! ?".
var sentenceEndRe = regexp.MustCompile(`(?s)[^.!?]*[.!?]+`)

// splitSentences partitions text into sentences, the atomic unit for
// SEMANTIC packing.
func splitSentences(text string) []unit {
	locs := sentenceEndRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []unit{{text: text, start: 0, end: len(text)}}
	}
	var units []unit
	cursor := 0
	for _, loc := range locs {
		if loc[1] > loc[0] {
			units = append(units, unit{text: text[loc[0]:loc[1]], start: loc[0], end: loc[1]})
		}
		cursor = loc[1]
	}
	if cursor < len(text) {
		tail := text[cursor:]
		if len(trimSpace(tail)) > 0 {
			units = append(units, unit{text: tail, start: cursor, end: len(text)})
		}
	}
	return units
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
