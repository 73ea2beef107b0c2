package wei

import (
	"math/big"
	"testing"
)

func TestParseEther_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"one ether", "1", "1000000000000000000"},
		{"fraction", "1.5", "1500000000000000000"},
		{"leading dot", ".25", "250000000000000000"},
		{"smallest unit", "0.000000000000000001", "1"},
		{"trailing zeros past 18 places", "1.0000000000000000000", "1000000000000000000"},
		{"trailing dot", "3.", "3000000000000000000"},
		{"large", "123456789.000000000000000001", "123456789000000000000000001"},
		{"zero", "0", "0"},
		{"whitespace", " 2 ", "2000000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseEther(tt.input)
			if !ok {
				t.Fatalf("ParseEther(%q) returned ok=false", tt.input)
			}
			if got.String() != tt.want {
				t.Errorf("ParseEther(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseEther_Invalid(t *testing.T) {
	for _, input := range []string{
		"", "-1", "+1", "1.2.3", "abc", "1e18", ".", "0x10",
		"0.0000000000000000019", "1.0000000000000000009",
	} {
		if _, ok := ParseEther(input); ok {
			t.Errorf("ParseEther(%q) should fail", input)
		}
	}
}

func TestParseWei(t *testing.T) {
	got, ok := ParseWei("1000")
	if !ok || got.Int64() != 1000 {
		t.Fatalf("ParseWei(1000) = %v, %v", got, ok)
	}
	for _, input := range []string{"", "-5", "1.0", "ten"} {
		if _, ok := ParseWei(input); ok {
			t.Errorf("ParseWei(%q) should fail", input)
		}
	}
}

func TestFormatEther(t *testing.T) {
	tests := []struct {
		in   *big.Int
		want string
	}{
		{nil, "0"},
		{big.NewInt(0), "0"},
		{big.NewInt(1), "0.000000000000000001"},
		{Ether(10), "10"},
		{new(big.Int).Add(Ether(1), new(big.Int).Div(Ether(1), big.NewInt(2))), "1.5"},
		{new(big.Int).Neg(Ether(3)), "-3"},
	}
	for _, tt := range tests {
		if got := FormatEther(tt.in); got != tt.want {
			t.Errorf("FormatEther(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "0.1", "42.000000000000000042", "0.5"} {
		v, ok := ParseEther(s)
		if !ok {
			t.Fatalf("ParseEther(%q) failed", s)
		}
		if got := FormatEther(v); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestClone(t *testing.T) {
	if Clone(nil).Sign() != 0 {
		t.Error("Clone(nil) should be zero")
	}
	orig := big.NewInt(7)
	c := Clone(orig)
	c.SetInt64(9)
	if orig.Int64() != 7 {
		t.Error("Clone must not alias the original")
	}
}

func TestParsePositive(t *testing.T) {
	v, ok := ParsePositive("1.5", "")
	if !ok || v.String() != "1500000000000000000" {
		t.Fatalf("ParsePositive(1.5) = %v, %v", v, ok)
	}
	v, ok = ParsePositive("ignored", "42")
	if !ok || v.String() != "42" {
		t.Fatalf("ParsePositive(wei 42) = %v, %v", v, ok)
	}
	for _, tc := range [][2]string{{"0", ""}, {"", "0"}, {"", ""}, {"-1", ""}, {"1.0000000000000000009", ""}} {
		if _, ok := ParsePositive(tc[0], tc[1]); ok {
			t.Errorf("ParsePositive(%q, %q) should fail", tc[0], tc[1])
		}
	}
}
