package chunk

import (
	"regexp"
	"strings"

	"contextnexus/internal/core"
	"contextnexus/internal/tokencount"
)

var listItemRe = regexp.MustCompile(`^[ \t]*([-*•]|[0-9]+\.|[a-z]\))[ \t]+`)

type taggedUnit struct {
	unit
	isList bool
}

// chunkListAware treats a contiguous run of list-item lines as an
// indivisible packing unit unless it alone exceeds maxChunkTokens, in which
// case that run falls back to PARAGRAPH splitting.
func chunkListAware(text string, maxChunkTokens int) []core.ContentChunk {
	units := splitListRuns(text)

	var out []core.ContentChunk
	var cur []unit
	curText := ""
	sep := "\n\n"

	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, mergeUnits(cur, sep))
		cur = nil
		curText = ""
	}

	for _, tu := range units {
		ut := tu.tokens()
		if ut > maxChunkTokens {
			flush()
			// An oversized list run falls back to PARAGRAPH splitting per spec;
			// an oversized non-list run is already paragraph-shaped text, so the
			// same fallback applies uniformly.
			out = append(out, packUnitsRecursive(splitParagraphs(tu.text), maxChunkTokens, "\n\n")...)
			continue
		}
		if len(cur) > 0 && tokencount.Count(curText+sep+tu.text) > maxChunkTokens {
			flush()
		}
		if len(cur) > 0 {
			curText += sep
		}
		curText += tu.text
		cur = append(cur, tu.unit)
	}
	flush()
	return out
}

// splitListRuns partitions text into alternating runs of contiguous
// list-item lines and everything else, preserving line offsets.
func splitListRuns(text string) []taggedUnit {
	lines := splitLinesWithOffsets(text)
	if len(lines) == 0 {
		return nil
	}

	var units []taggedUnit
	i := 0
	for i < len(lines) {
		isList := listItemRe.MatchString(lines[i].text)
		j := i + 1
		for j < len(lines) && listItemRe.MatchString(lines[j].text) == isList {
			j++
		}
		start := lines[i].start
		end := lines[j-1].end
		units = append(units, taggedUnit{
			unit:   unit{text: strings.TrimRight(text[start:end], "\n"), start: start, end: end},
			isList: isList,
		})
		i = j
	}
	return units
}

type lineSpan struct {
	text       string
	start, end int
}

func splitLinesWithOffsets(text string) []lineSpan {
	var spans []lineSpan
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			spans = append(spans, lineSpan{text: text[start : i+1], start: start, end: i + 1})
			start = i + 1
		}
	}
	if start < len(text) {
		spans = append(spans, lineSpan{text: text[start:], start: start, end: len(text)})
	}
	return spans
}
