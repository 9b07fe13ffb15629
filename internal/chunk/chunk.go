// Package chunk splits a content item's body into ordered ContentChunks
// under a per-chunk token cap, using a strategy chosen from its content
// type. Anchor detection for CODE_AWARE is grounded in the same per-language
// boundary heuristics the retrieved teacher corpus uses for RAG ingestion.
package chunk

import (
	"contextnexus/internal/core"
	"contextnexus/internal/tokencount"
)

// unit is a contiguous, non-overlapping slice of the source text. Units
// partition the text in order; Start/End are byte offsets into the
// original string. Adjacent units may have End(i) < Start(i+1) when a
// separator (blank line, whitespace run) was consumed between them —
// chunk boundaries preserve ordering "ignoring separator length" per spec.
type unit struct {
	text  string
	start int
	end   int
}

func (u unit) tokens() int { return tokencount.Count(u.text) }

// Chunk splits text into ordered ContentChunks under maxChunkTokens, using
// the strategy appropriate for contentType when strategy is empty.
func Chunk(text string, contentType core.ContentType, strategy core.ChunkStrategy, maxChunkTokens int) (chunks []core.ContentChunk, err error) {
	if maxChunkTokens <= 0 {
		maxChunkTokens = 1000
	}
	if strategy == "" {
		strategy = core.DefaultStrategyFor(contentType)
	}
	if text == "" {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			chunks = packUnits(splitFixedSize(text), maxChunkTokens, " ")
			err = nil
		}
	}()

	switch strategy {
	case core.StrategyParagraph:
		return packUnitsRecursive(splitParagraphs(text), maxChunkTokens, "\n\n"), nil
	case core.StrategySemantic:
		return packUnitsRecursive(splitSentences(text), maxChunkTokens, " "), nil
	case core.StrategyCodeAware:
		return packUnitsRecursive(splitCodeAnchors(text), maxChunkTokens, ""), nil
	case core.StrategyListAware:
		return chunkListAware(text, maxChunkTokens), nil
	case core.StrategyFixedSize:
		return packUnits(splitFixedSize(text), maxChunkTokens, " "), nil
	default:
		return packUnits(splitFixedSize(text), maxChunkTokens, " "), nil
	}
}

// packUnitsRecursive packs atomic units greedily; a unit that alone exceeds
// maxChunkTokens is recursively split with FIXED_SIZE rather than emitted
// oversized.
func packUnitsRecursive(units []unit, maxChunkTokens int, sep string) []core.ContentChunk {
	var out []core.ContentChunk
	var cur []unit
	curText := ""

	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, mergeUnits(cur, sep))
		cur = nil
		curText = ""
	}

	for _, u := range units {
		ut := u.tokens()
		if ut > maxChunkTokens {
			flush()
			out = append(out, packUnits(splitFixedSize(u.text), maxChunkTokens, " ")...)
			continue
		}
		if len(cur) > 0 && tokencount.Count(curText+sep+u.text) > maxChunkTokens {
			flush()
		}
		if len(cur) > 0 {
			curText += sep
		}
		curText += u.text
		cur = append(cur, u)
	}
	flush()
	return out
}

// packUnits is packUnitsRecursive without the recursive fallback, used as
// the terminal FIXED_SIZE packer and as the panic-recovery fallback.
func packUnits(units []unit, maxChunkTokens int, sep string) []core.ContentChunk {
	var out []core.ContentChunk
	var cur []unit
	curText := ""

	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, mergeUnits(cur, sep))
		cur = nil
		curText = ""
	}

	for _, u := range units {
		ut := u.tokens()
		if ut > maxChunkTokens {
			flush()
			out = append(out, mergeUnits([]unit{u}, sep))
			continue
		}
		if len(cur) > 0 && tokencount.Count(curText+sep+u.text) > maxChunkTokens {
			flush()
		}
		if len(cur) > 0 {
			curText += sep
		}
		curText += u.text
		cur = append(cur, u)
	}
	flush()
	return out
}

func mergeUnits(units []unit, sep string) core.ContentChunk {
	content := units[0].text
	for _, u := range units[1:] {
		content += sep + u.text
	}
	return core.ContentChunk{
		Content:    content,
		Tokens:     tokencount.Count(content),
		StartIndex: units[0].start,
		EndIndex:   units[len(units)-1].end,
		Metadata:   map[string]string{},
	}
}
