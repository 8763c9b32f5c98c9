package filter

import (
	"strconv"
	"strings"
	"time"
)

// The movie API reads "+" as include and "!" as exclude, so both signs are
// escaped by hand: "+" as %2B and "-" as %21 ("!").
var signEscaper = strings.NewReplacer("+", "%2B", "-", "%21")

// BuildURL appends the query string for s to base. base is expected to end
// with "?". Only the genre and country values are escaped.
func BuildURL(base string, s Set, now time.Time) string {
	rating := s.Rating
	if len(rating) == 1 {
		rating += "-" + strconv.Itoa(maxRating)
	}
	year := s.Year
	if len(year) == 4 {
		year += "-" + strconv.Itoa(now.Year())
	}

	params := []string{
		"rating.kp=" + rating,
		"year=" + year,
	}
	if s.MediaType != "" {
		params = append(params, "type="+string(s.MediaType))
	}
	if len(s.Countries) > 0 {
		params = append(params, "countries.name="+encodeList(s.Countries, "&countries.name="))
	}
	if len(s.Genres) > 0 {
		params = append(params, "genres.name="+encodeList(s.Genres, "&genres.name="))
	}
	return base + strings.Join(params, "&")
}

func encodeList(entries []Entry, sep string) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.String()
	}
	return signEscaper.Replace(strings.Join(parts, sep))
}
