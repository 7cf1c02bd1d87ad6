package hbar

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"", 0, true},
		{"0", 0, true},
		{"1", 100_000_000, true},
		{"1.5", 150_000_000, true},
		{"0.00000001", 1, true},
		{"-0.00000001", -1, true},
		{"-10", -1_000_000_000, true},
		{"12345.67890123", 1_234_567_890_123, true},
		{"5.", 500_000_000, true},
		{".5", 50_000_000, true},
		{"0.000000001", 0, false}, // 9 fractional digits
		{"1.2.3", 0, false},
		{"--1", 0, false},
		{"-", 0, false},
		{".", 0, false},
		{"abc", 0, false},
		{"1e8", 0, false},
	}

	for _, tt := range tests {
		got, ok := Parse(tt.in)
		if ok != tt.wantOK {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0.00000000"},
		{1, "0.00000001"},
		{100_000_000, "1.00000000"},
		{150_000_000, "1.50000000"},
		{-1, "-0.00000001"},
		{-1_000_000_000, "-10.00000000"},
		{1_234_567_890_123, "12345.67890123"},
	}

	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 42, 100_000_000, -987_654_321} {
		got, ok := Parse(Format(v))
		if !ok || got != v {
			t.Errorf("round trip %d -> %q -> %d (ok=%v)", v, Format(v), got, ok)
		}
	}
}

func TestFloat(t *testing.T) {
	if got := Float(150_000_000); got != 1.5 {
		t.Errorf("Float(150000000) = %v, want 1.5", got)
	}
	if got := Float(-50_000_000); got != -0.5 {
		t.Errorf("Float(-50000000) = %v, want -0.5", got)
	}
}
