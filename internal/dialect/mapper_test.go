package dialect

import (
	"strings"
	"testing"
)

func TestTransformNorth(t *testing.T) {
	m := NewMapper()
	out := m.Transform("hắn đi mô rứa", North)
	if strings.Contains(out, "mô") || strings.Contains(out, "rứa") {
		t.Fatalf("expected central words replaced, got %q", out)
	}
	if !strings.Contains(out, "nó") || !strings.Contains(out, "đâu") || !strings.Contains(out, "vậy") {
		t.Fatalf("unexpected transform result %q", out)
	}
}

func TestTransformCentralKeepsLocalWords(t *testing.T) {
	m := NewMapper()
	in := "hắn đi mô rứa"
	if out := m.Transform(in, Central); out != in {
		t.Fatalf("central transform should be identity, got %q", out)
	}
}

func TestTransformPhrasesBeforeWords(t *testing.T) {
	m := NewMapper()
	out := m.Transform("mần chi rứa", South)
	if !strings.Contains(out, "làm chi") {
		t.Fatalf("expected phrase mapping applied, got %q", out)
	}
}

func TestTransformAdjacentOccurrences(t *testing.T) {
	m := NewMapper()
	if out := m.Transform("mô mô", North); out != "đâu đâu" {
		t.Fatalf("expected both occurrences replaced, got %q", out)
	}
	if out := m.Transform("rứa, rứa!", South); out != "vậy, vậy!" {
		t.Fatalf("expected both occurrences replaced, got %q", out)
	}
}

func TestTransformLeavesLongerWordsAlone(t *testing.T) {
	m := NewMapper()
	in := "môn học"
	if out := m.Transform(in, North); out != in {
		t.Fatalf("key inside a longer word should not be replaced, got %q", out)
	}
}

func TestTransformUnknownDialect(t *testing.T) {
	m := NewMapper()
	in := "hắn đi mô"
	if out := m.Transform(in, "west"); out != in {
		t.Fatalf("unknown dialect should be identity, got %q", out)
	}
}

func TestKnown(t *testing.T) {
	m := NewMapper()
	for _, d := range []string{North, Central, South} {
		if !m.Known(d) {
			t.Fatalf("expected %s to be known", d)
		}
	}
	if m.Known("klingon") {
		t.Fatal("unexpected dialect accepted")
	}
}

func TestDetectCentral(t *testing.T) {
	m := NewMapper()
	if got := m.Detect("hắn đi mô rứa, răng ni tê"); got != Central {
		t.Fatalf("expected central, got %s", got)
	}
}

func TestAddMapping(t *testing.T) {
	m := NewMapper()
	m.AddMapping(South, "chừ", "bây giờ")
	if out := m.Transform("chừ đi", South); !strings.Contains(out, "bây giờ") {
		t.Fatalf("expected custom mapping applied, got %q", out)
	}
}
