// Package filter parses the free-form filter arguments of the random movie
// commands and turns them into a movie API query string.
//
// Arguments are whitespace (or comma) separated tokens in any order:
//
//	/filmr 2-5 2009-2020 +фантастика -драма Россия фильм
//
// A token is a rating ("7", "2-5"), a year ("2020", "2009-2020") or a media
// type label; independently of that it may also name a genre or a country,
// optionally prefixed with "+" (include) or "-" (exclude). Anything else is
// ignored.
package filter

import (
	"strconv"
	"strings"
	"time"

	"github.com/handsomefox/kinochat/internal/vocab"
)

const (
	minRating = 1
	maxRating = 10
	minYear   = 1890
)

// Sign marks a genre or country entry as included or excluded.
type Sign byte

const (
	Include Sign = '+'
	Exclude Sign = '-'
)

// Entry is a signed genre or country name.
type Entry struct {
	Sign Sign
	Name string
}

func (e Entry) String() string { return string(e.Sign) + e.Name }

// Set is the parsed intent of a filter command.
type Set struct {
	// Rating and Year keep the literal token; see BuildURL for expansion.
	Rating    string
	Year      string
	MediaType vocab.MediaType
	Genres    []Entry
	Countries []Entry
}

// Defaults returns the filter set of an empty command.
func Defaults(now time.Time) Set {
	return Set{
		Rating: strconv.Itoa(minRating) + "-" + strconv.Itoa(maxRating),
		Year:   strconv.Itoa(minYear) + "-" + strconv.Itoa(now.Year()),
	}
}

// StripCommand removes a leading "/<prefix>" (longest prefix wins) and an
// optional bot mention glued to it, then any whitespace after it. Text that
// does not start with one of the prefixes is returned unchanged.
func StripCommand(text string, prefixes []string, botUsername string) string {
	best := ""
	for _, p := range prefixes {
		if strings.HasPrefix(text, "/"+p) && len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		return text
	}
	rest := text[len(best)+1:]
	if botUsername != "" && len(rest) >= len(botUsername) && strings.EqualFold(rest[:len(botUsername)], botUsername) {
		rest = rest[len(botUsername):]
	}
	return strings.TrimLeft(rest, " \t\r\n")
}

// Tokens strips the command and splits the arguments. Commas count as spaces.
func Tokens(text string, prefixes []string, botUsername string) []string {
	args := StripCommand(text, prefixes, botUsername)
	return strings.Fields(strings.ReplaceAll(args, ",", " "))
}

// Classify parses the arguments of a filter command. It never fails:
// tokens that match nothing are dropped.
func Classify(text string, prefixes []string, botUsername string, now time.Time) Set {
	set := Defaults(now)
	year := now.Year()

	for _, tok := range Tokens(text, prefixes, botUsername) {
		switch {
		case isRating(tok):
			set.Rating = tok
		case isYear(tok, year):
			set.Year = tok
		default:
			if mt, ok := vocab.LookupMediaType(tok); ok {
				set.MediaType = mt
			}
		}

		// Genres and countries are checked for every token, even one already
		// taken as a media type ("мультфильм" is both).
		sign, name := Include, tok
		signed := tok[0] == byte(Include) || tok[0] == byte(Exclude)
		if signed {
			sign, name = Sign(tok[0]), tok[1:]
		}

		if g, ok := vocab.LookupGenre(name); ok {
			set.Genres = append(set.Genres, Entry{Sign: sign, Name: g})
		}

		matches := vocab.LookupCountry(name)
		if !signed && len(matches) > 1 {
			matches = matches[:1]
		}
		for _, c := range matches {
			set.Countries = append(set.Countries, Entry{Sign: sign, Name: c})
		}
	}
	return set
}

func isRating(tok string) bool {
	return isValueOrRange(tok, minRating, maxRating)
}

func isYear(tok string, currentYear int) bool {
	if len(tok) == 4 {
		return inRange(tok, minYear, currentYear)
	}
	lo, hi, ok := strings.Cut(tok, "-")
	return ok && inRange(lo, minYear, currentYear) && inRange(hi, minYear, currentYear)
}

func isValueOrRange(tok string, lo, hi int) bool {
	if inRange(tok, lo, hi) {
		return true
	}
	a, b, ok := strings.Cut(tok, "-")
	return ok && inRange(a, lo, hi) && inRange(b, lo, hi)
}

// inRange reports whether s is a non-empty run of ASCII digits whose value
// lies in [lo, hi].
func inRange(s string, lo, hi int) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return false
	}
	return n >= lo && n <= hi
}
