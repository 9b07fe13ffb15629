// Package compressor produces shorter forms of a content fragment: key
// sentences for text, a structural skeleton for code. Grounded in the
// teacher's documents.splitter paragraph-splitting helpers (reused here to
// walk paragraph boundaries) and boundaries.go's function/class anchor
// regexes (reused for the code structural-skeleton fallback).
package compressor

import (
	"regexp"
	"strings"

	"contextnexus/internal/core"
	"contextnexus/internal/tokencount"
)

// keyPhrases is the fixed, case-insensitive phrase set §4.5 names; a
// paragraph matching any of these (beyond the always-kept first paragraph)
// is retained verbatim.
var keyPhrases = []string{
	"important", "critical", "essential", "key", "crucial", "significant",
	"primary", "main", "fundamental", "vital", "necessary", "required",
	"must", "should", "conclusion", "therefore", "thus", "hence",
	"in summary", "to summarize",
}

// Compress dispatches on content type: text uses key-sentence extraction,
// code uses comment-stripping plus a structural-skeleton fallback. Every
// other content type goes through the text path. The result is never longer
// (in tokens) than the input; if it would be, the input is returned as-is
// (spec's never-longer-than-input guarantee).
func Compress(s string, contentType core.ContentType) string {
	var out string
	switch contentType {
	case core.ContentCode:
		out = compressCode(s)
	default:
		out = compressText(s)
	}
	if tokencount.Count(out) >= tokencount.Count(s) {
		return s
	}
	return out
}

// compressText always keeps the first paragraph, plus any paragraph that
// contains one of the fixed key phrases (case-insensitive).
func compressText(s string) string {
	paragraphs := splitParagraphs(s)
	if len(paragraphs) == 0 {
		return s
	}
	kept := make([]string, 0, len(paragraphs))
	kept = append(kept, paragraphs[0])
	for _, p := range paragraphs[1:] {
		if containsKeyPhrase(p) {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func containsKeyPhrase(p string) bool {
	lower := strings.ToLower(p)
	for _, phrase := range keyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func splitParagraphs(s string) []string {
	raw := regexp.MustCompile(`\n\s*\n`).Split(s, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	lineCommentRE   = regexp.MustCompile(`(?m)//[^\n]*`)
	blockCommentRE  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	blankRunRE      = regexp.MustCompile(`\n{3,}`)
	importRE        = regexp.MustCompile(`(?m)^\s*import\s+.*$`)
	functionSigRE   = regexp.MustCompile(`(?m)^\s*function\s+\w+\s*\([^{]*\{`)
	classHeaderRE   = regexp.MustCompile(`(?m)^\s*class\s+\w+[^{]*\{`)
)

const codeCompressionLengthCap = 1000

// compressCode strips comments, collapses excess blank lines, and — if the
// result still exceeds codeCompressionLengthCap characters — replaces the
// body with its structural anchors (imports, function signatures, class
// headers), or a first-10-lines fallback when no anchors are found.
func compressCode(s string) string {
	stripped := blockCommentRE.ReplaceAllString(s, "")
	stripped = lineCommentRE.ReplaceAllString(stripped, "")
	stripped = blankRunRE.ReplaceAllString(stripped, "\n\n")
	stripped = strings.TrimRight(stripped, " \t\n") + "\n"

	if len(stripped) <= codeCompressionLengthCap {
		return stripped
	}

	var anchors []string
	anchors = append(anchors, importRE.FindAllString(s, -1)...)
	anchors = append(anchors, functionSigRE.FindAllString(s, -1)...)
	anchors = append(anchors, classHeaderRE.FindAllString(s, -1)...)

	if len(anchors) == 0 {
		lines := strings.SplitN(s, "\n", codeFallbackLines+1)
		if len(lines) > codeFallbackLines {
			lines = lines[:codeFallbackLines]
		}
		return strings.Join(lines, "\n") + "\n// ..."
	}

	var b strings.Builder
	for _, a := range anchors {
		b.WriteString(strings.TrimRight(a, " \t\n"))
		b.WriteString(" /* ... */ }\n")
	}
	return b.String()
}

const codeFallbackLines = 10
