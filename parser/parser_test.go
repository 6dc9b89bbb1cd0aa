package parser

import (
	"errors"
	"testing"

	"github.com/aluiziolira/fortunemusic-history/models"
	"github.com/google/go-cmp/cmp"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{name: "count glyph", input: "1,234個", expected: 1234},
		{name: "yen glyphs", input: "¥5,000円", expected: 5000},
		{name: "full-width yen", input: "￥1,000", expected: 1000},
		{name: "full stop separator", input: "1.000", expected: 1000},
		{name: "surrounding whitespace", input: "  \n 2個 \t", expected: 2},
		{name: "plain", input: "42", expected: 42},
		{name: "zero", input: "0円", expected: 0},
		{name: "blank cell", input: "   ", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNumber(tt.input)
			if err != nil {
				t.Fatalf("ParseNumber(%q) error = %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseNumber(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseNumberInvalid(t *testing.T) {
	for _, input := range []string{"-", "未定", "12枚", "-1,000円", "-5"} {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseNumber(input); !errors.Is(err, ErrInvalidNumber) {
				t.Fatalf("ParseNumber(%q) error = %v, want ErrInvalidNumber", input, err)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"07/05", "7/5"},
		{"7/5", "7/5"},
		{"10/01", "10/1"},
		{"01/10", "1/10"},
		{"12/25", "12/25"},
		{"no date", "no date"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeDate(tt.input); got != tt.expected {
				t.Errorf("NormalizeDate(%q) = %q, want %q", tt.input, got, tt.expected)
			}
			if got := NormalizeDate(NormalizeDate(tt.input)); got != tt.expected {
				t.Errorf("NormalizeDate is not idempotent for %q: %q", tt.input, got)
			}
		})
	}
}

func TestNormalizeWidth(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"１２ｔｈ", "12th"},
		{"ＡＢＣ　ｘｙｚ", "ABC xyz"},
		{"第３部", "第3部"},
		{"シングル", "シングル"},
		{"plain", "plain"},
		{"ｶﾞ（１）／", "ｶﾞ（1）／"},
		{"幕張メッセ（千葉）", "幕張メッセ（千葉）"},
		{"ＡＫＢ４８！", "AKB48！"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeWidth(tt.input); got != tt.expected {
				t.Errorf("NormalizeWidth(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseProductName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *models.ParsedName
	}{
		{
			name:  "full-width label",
			input: "生田絵梨花【０７/０５　幕張メッセ　第３部】乃木坂46 １２ｔｈシングル「太陽ノック」",
			expected: &models.ParsedName{
				Person: "生田絵梨花",
				Date:   "7/5",
				Venue:  "幕張メッセ",
				Period: "3",
				Disc:   "12th シングル",
			},
		},
		{
			name:  "half-width label with leading space",
			input: "  白石麻衣【3/21 パシフィコ横浜 第1部】 2nd アルバム",
			expected: &models.ParsedName{
				Person: "白石麻衣",
				Date:   "3/21",
				Venue:  "パシフィコ横浜",
				Period: "1",
				Disc:   "2nd アルバム",
			},
		},
		{
			name:     "missing period marker",
			input:    "生田絵梨花【07/05 幕張メッセ】12thシングル",
			expected: nil,
		},
		{
			name:     "not a ticket",
			input:    "送料",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseProductName(tt.input)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("ParseProductName(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}
