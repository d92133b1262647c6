package slug

import (
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	generator := New(8)

	if generator.length != 8 {
		t.Errorf("Expected length 8, got %d", generator.length)
	}

	if generator.symbols != defaultSymbols {
		t.Errorf("Expected default symbols, got %s", generator.symbols)
	}
}

func TestNew_Bounds(t *testing.T) {
	if g := New(0); g.length != DefaultLength {
		t.Errorf("Expected default length %d, got %d", DefaultLength, g.length)
	}
	if g := New(1000); g.length != MaxLength {
		t.Errorf("Expected length capped at %d, got %d", MaxLength, g.length)
	}
}

func TestAlphabetSize(t *testing.T) {
	if len(defaultSymbols) != 64 {
		t.Fatalf("alphabet must have 64 symbols for the bit mask, got %d", len(defaultSymbols))
	}
	seen := make(map[rune]bool)
	for _, c := range defaultSymbols {
		if seen[c] {
			t.Errorf("duplicate symbol %c", c)
		}
		seen[c] = true
	}
}

func TestGenerate(t *testing.T) {
	generator := New(DefaultLength)

	id, err := generator.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(id) != DefaultLength {
		t.Errorf("Expected id length %d, got %d", DefaultLength, len(id))
	}

	for _, char := range id {
		if !strings.ContainsRune(defaultSymbols, char) {
			t.Errorf("Id contains invalid character: %c", char)
		}
	}
	if !IsValid(id) {
		t.Errorf("Generated id %q is not valid", id)
	}
}

func TestGenerateLength(t *testing.T) {
	generator := New(5)

	testCases := []int{1, 3, 8, 15, 21, 64}

	for _, length := range testCases {
		t.Run(fmt.Sprintf("length_%d", length), func(t *testing.T) {
			id, err := generator.GenerateLength(length)
			if err != nil {
				t.Fatalf("GenerateLength(%d) failed: %v", length, err)
			}

			if len(id) != length {
				t.Errorf("Expected id length %d, got %d", length, len(id))
			}
		})
	}
}

func TestGenerateLength_ZeroLength(t *testing.T) {
	generator := New(7)

	id, err := generator.GenerateLength(0)
	if err != nil {
		t.Fatalf("GenerateLength(0) failed: %v", err)
	}

	// Should fall back to generator's default length
	if len(id) != 7 {
		t.Errorf("Expected id length 7 (fallback), got %d", len(id))
	}
}

func TestGenerateUniqueness(t *testing.T) {
	generator := New(DefaultLength)

	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := generator.Generate()
		if err != nil {
			t.Fatalf("Generate failed on iteration %d: %v", i, err)
		}

		if ids[id] {
			t.Errorf("Generated duplicate id: %s", id)
		}
		ids[id] = true
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"V1StGXR8_Z5jdHi6B-myT", true},
		{"a", true},
		{strings.Repeat("x", MaxLength), true},
		{strings.Repeat("x", MaxLength+1), false},
		{"", false},
		{"has space", false},
		{"../etc/passwd", false},
		{"paste:abc", false},
		{"ünïcode", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := IsValid(tt.id); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func BenchmarkGenerate(b *testing.B) {
	generator := New(DefaultLength)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := generator.Generate()
		if err != nil {
			b.Fatalf("Generate failed: %v", err)
		}
	}
}
