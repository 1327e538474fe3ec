package utils

import "testing"

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"", true},
		{"   ", true},
		{"\t\n", true},
		{"hello", false},
		{" hello ", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := IsEmpty(tt.input)
			if result != tt.expected {
				t.Errorf("expected %t, got %t", tt.expected, result)
			}
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  hello   world  ", "hello world"},
		{"one\ttwo\nthree", "one two three"},
		{"already clean", "already clean"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := NormalizeWhitespace(tt.input); result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestFoldContent(t *testing.T) {
	tests := []struct {
		a, b  string
		equal bool
	}{
		{"Hello World", "hello   world", true},
		{"  SAME  ", "same", true},
		{"different", "words", false},
	}

	for _, tt := range tests {
		t.Run(tt.a, func(t *testing.T) {
			if (FoldContent(tt.a) == FoldContent(tt.b)) != tt.equal {
				t.Errorf("fold equality mismatch for %q vs %q", tt.a, tt.b)
			}
		})
	}
}
