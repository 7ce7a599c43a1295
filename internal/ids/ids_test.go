package ids

import "testing"

func TestNewUniqueAndSortable(t *testing.T) {
	a := New()
	b := New()
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
	if len(a) != 26 {
		t.Fatalf("unexpected id length: %d", len(a))
	}
	if b < a {
		t.Fatalf("ids not monotonic: %q then %q", a, b)
	}
}

func TestTokenShape(t *testing.T) {
	tok := Token(64)
	if len(tok) != 64 {
		t.Fatalf("unexpected token length: %d", len(tok))
	}
	for _, r := range tok {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			t.Fatalf("token contains non-alphanumeric rune %q", r)
		}
	}
	if Token(0) != "" {
		t.Fatalf("expected empty token for zero length")
	}
	if Token(16) == Token(16) {
		t.Fatalf("expected random tokens to differ")
	}
}

func TestTokenSymbolsRoughlyUniform(t *testing.T) {
	counts := make(map[rune]int, len(tokenAlphabet))
	for _, r := range Token(620000) {
		counts[r]++
	}
	if len(counts) != len(tokenAlphabet) {
		t.Fatalf("only %d of %d symbols observed", len(counts), len(tokenAlphabet))
	}
	min, max := int(^uint(0)>>1), 0
	for _, n := range counts {
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	// A modulo-biased sampler puts 25% more mass on the first 256%62
	// symbols; sampling noise at this size stays within a few percent.
	if float64(max) > 1.1*float64(min) {
		t.Fatalf("symbol frequencies skewed: min %d, max %d", min, max)
	}
}
