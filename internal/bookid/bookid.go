// Package bookid formats the human readable catalog identifier assigned to books.
//
// An identifier has the shape
//
//	<title prefix><MON><DD><YYYY>-<category code><sequence>
//
// for example THFEB102022-FIC00001. The month and year come from the publication
// date, the day from the date the book was added to the catalog. The sequence is
// supplied by the caller; this package does not allocate it.
package bookid

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidArgument is returned when identifier inputs are missing or malformed.
var ErrInvalidArgument = errors.New("bookid: invalid argument")

const (
	titlePrefixLength  = 2
	categoryCodeLength = 3
	padding            = "X"
)

// Params holds the inputs of an identifier.
type Params struct {
	Title           string
	Category        string
	PublicationDate time.Time
	AddedDate       time.Time
	Sequence        int
}

// Generate formats the catalog identifier for p.
func Generate(p Params) (string, error) {
	if strings.TrimSpace(p.Title) == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(p.Category) == "" {
		return "", fmt.Errorf("%w: category is required", ErrInvalidArgument)
	}
	if p.PublicationDate.IsZero() {
		return "", fmt.Errorf("%w: publication date is required", ErrInvalidArgument)
	}
	if p.AddedDate.IsZero() {
		return "", fmt.Errorf("%w: added date is required", ErrInvalidArgument)
	}
	if p.Sequence < 0 {
		return "", fmt.Errorf("%w: sequence must be non-negative", ErrInvalidArgument)
	}

	prefix := pad(keep(p.Title, isLetter, titlePrefixLength), titlePrefixLength)
	category := pad(keep(p.Category, isAlphanumeric, categoryCodeLength), categoryCodeLength)
	month := strings.ToUpper(p.PublicationDate.Format("Jan"))
	dayOfMonth := p.AddedDate.Format("02")
	year := p.PublicationDate.Format("2006")

	return fmt.Sprintf("%s%s%s%s-%s%05d", prefix, month, dayOfMonth, year, category, p.Sequence), nil
}

// ParseDate parses a catalog date given as YYYY-MM-DD, "YYYY-MM-DD HH:MM:SS", or RFC 3339.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", ErrInvalidArgument)
	}
	for _, layout := range []string{time.DateOnly, time.DateTime, time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrInvalidArgument, value)
}

func keep(value string, allowed func(rune) bool, limit int) string {
	var b strings.Builder
	for _, r := range value {
		if b.Len() == limit {
			break
		}
		if allowed(r) {
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

func pad(value string, length int) string {
	if len(value) >= length {
		return value
	}
	return value + strings.Repeat(padding, length-len(value))
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isAlphanumeric(r rune) bool {
	return isLetter(r) || (r >= '0' && r <= '9')
}
