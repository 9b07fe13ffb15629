package compressor

import (
	"strings"
	"testing"

	"contextnexus/internal/core"
)

func TestCompressTextKeepsFirstParagraphAndKeyPhrases(t *testing.T) {
	text := "This is the opening paragraph.\n\nJust a filler paragraph with nothing special.\n\nThis part is critical and must be kept.\n\nAnother filler paragraph here."
	got := Compress(text, core.ContentText)
	if !strings.Contains(got, "opening paragraph") {
		t.Fatalf("expected first paragraph kept, got %q", got)
	}
	if !strings.Contains(got, "critical and must be kept") {
		t.Fatalf("expected key-phrase paragraph kept, got %q", got)
	}
	if strings.Contains(got, "nothing special") {
		t.Fatalf("expected filler paragraph dropped, got %q", got)
	}
}

func TestCompressNeverLongerThanInput(t *testing.T) {
	text := "short."
	got := Compress(text, core.ContentText)
	if len(got) > len(text) {
		t.Fatalf("compressed output longer than input: %q vs %q", got, text)
	}
}

func TestCompressCodeStripsComments(t *testing.T) {
	code := "import \"fmt\"\n\nfunction add(a, b) {\n  // adds two numbers\n  return a + b\n}\n"
	got := Compress(code, core.ContentCode)
	if strings.Contains(got, "adds two numbers") {
		t.Fatalf("expected line comment stripped, got %q", got)
	}
}

func TestCompressCodeStructuralFallback(t *testing.T) {
	var b strings.Builder
	b.WriteString("import \"fmt\"\n\n")
	for i := 0; i < 40; i++ {
		b.WriteString("function handler" + strings.Repeat("x", i%5) + "(a, b) {\n  doWork(a, b)\n  doMoreWork(a, b)\n  return a + b\n}\n\n")
	}
	got := Compress(b.String(), core.ContentCode)
	if !strings.Contains(got, "import \"fmt\"") {
		t.Fatalf("expected import anchor retained, got %q", got)
	}
}

func TestCompressCodeNoAnchorsFallsBackToFirstLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("x = x + 1\n")
	}
	got := Compress(b.String(), core.ContentCode)
	if !strings.HasSuffix(strings.TrimRight(got, "\n"), "// ...") {
		t.Fatalf("expected first-lines fallback marker, got %q", got)
	}
}
