package chunk

import "regexp"

// codeAnchorRe matches lines that are split boundaries for CODE_AWARE
// chunking: function/class declarations across the common languages,
// import statements, block-comment starts, line-comment lines, and
// brace-only lines. This mirrors the per-language boundary detection used
// for RAG ingestion in the retrieved corpus, collapsed into one
// language-agnostic pattern set since content items here don't always
// carry a language tag.
var codeAnchorRe = regexp.MustCompile(`(?m)^[ \t]*(` +
	`func |class |def |async def |fn |pub fn |struct |pub struct |enum |pub enum |trait |impl |` +
	`import |from .+ import |use |package |` +
	`//|#|/\*|\*/|` +
	`export |function |async function |` +
	`[{}]$` +
	`)`)

// splitCodeAnchors partitions text at the union of anchor points; splits
// become chunk boundaries and greedy packing happens between them.
func splitCodeAnchors(text string) []unit {
	locs := codeAnchorRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []unit{{text: text, start: 0, end: len(text)}}
	}

	var starts []int
	for _, loc := range locs {
		if len(starts) == 0 || loc[0] != starts[len(starts)-1] {
			starts = append(starts, loc[0])
		}
	}
	if starts[0] != 0 {
		starts = append([]int{0}, starts...)
	}

	var units []unit
	for i, s := range starts {
		e := len(text)
		if i+1 < len(starts) {
			e = starts[i+1]
		}
		if e <= s {
			continue
		}
		units = append(units, unit{text: text[s:e], start: s, end: e})
	}
	return units
}
