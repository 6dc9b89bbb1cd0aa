package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/fortunemusic-history/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/width"
)

// ErrInvalidNumber is returned when a cell does not reduce to an integer.
var ErrInvalidNumber = errors.New("parser: invalid number")

var numberNoise = strings.NewReplacer(
	",", "",
	".", "",
	"個", "",
	"¥", "",
	"￥", "",
	"円", "",
)

// ParseNumber converts a localized amount such as "¥5,000円" or "1,234個"
// into a non-negative integer. A blank cell yields zero.
func ParseNumber(text string) (int, error) {
	cleaned := strings.TrimSpace(numberNoise.Replace(text))
	if cleaned == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, text)
	}
	return n, nil
}

var datePattern = regexp.MustCompile(`0*(\d{1,2})/0*(\d{1,2})`)

// NormalizeDate strips leading zeros from both parts of every M/D date in text.
func NormalizeDate(text string) string {
	return datePattern.ReplaceAllString(text, "$1/$2")
}

// NormalizeWidth narrows full-width Latin letters, digits and the ideographic
// space. Other runes, full-width punctuation and half-width kana included,
// are left alone.
func NormalizeWidth(text string) string {
	return runes.If(runes.Predicate(isWideAlnumOrSpace), width.Narrow, nil).String(text)
}

func isWideAlnumOrSpace(r rune) bool {
	switch {
	case r == '\u3000':
		return true
	case r >= '０' && r <= '９':
		return true
	case r >= 'Ａ' && r <= 'Ｚ':
		return true
	case r >= 'ａ' && r <= 'ｚ':
		return true
	}
	return false
}

var productNamePattern = regexp.MustCompile(
	`\s*([^【]+).*?(\d{1,2}/\d{1,2})\s+(.+?)\s+第(.+?)部.*\D+(\d+?(?:st|nd|rd|th))\s*(シングル|アルバム)`,
)

// ParseProductName extracts member, event date, venue, period and disc from a
// product label. It returns nil when the label does not follow the handshake
// ticket naming convention.
func ParseProductName(raw string) *models.ParsedName {
	match := productNamePattern.FindStringSubmatch(NormalizeWidth(raw))
	if match == nil {
		return nil
	}
	return &models.ParsedName{
		Person: strings.TrimLeft(match[1], " \t\r\n"),
		Date:   NormalizeDate(match[2]),
		Venue:  match[3],
		Period: match[4],
		Disc:   match[5] + " " + match[6],
	}
}
