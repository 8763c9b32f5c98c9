package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/handsomefox/kinochat/internal/vocab"
)

const testBase = "https://api.kinopoisk.dev/v1.4/movie/random?"

func TestBuildURL_Defaults(t *testing.T) {
	got := BuildURL(testBase, Defaults(testNow), testNow)
	assert.Equal(t, testBase+"rating.kp=1-10&year=1890-2025", got)
}

func TestBuildURL_Expansion(t *testing.T) {
	s := Defaults(testNow)
	s.Rating = "7"
	s.Year = "2020"

	got := BuildURL(testBase, s, testNow)
	assert.Equal(t, testBase+"rating.kp=7-10&year=2020-2025", got)
}

func TestBuildURL_TwoDigitRatingKeptAsIs(t *testing.T) {
	s := Defaults(testNow)
	s.Rating = "10"
	assert.Contains(t, BuildURL(testBase, s, testNow), "rating.kp=10&")
}

func TestBuildURL_Scenario(t *testing.T) {
	s := classify("/filmr 2-5 2009-2020 +фантастика -драма Россия фильм")

	got := BuildURL(testBase, s, testNow)
	assert.Equal(t, testBase+
		"rating.kp=2-5&year=2009-2020&type=movie"+
		"&countries.name=%2BРоссия"+
		"&genres.name=%2Bфантастика&genres.name=%21драма", got)
}

func TestBuildURL_SignsEscapedOnlyInLists(t *testing.T) {
	s := Set{
		Rating:    "2-5",
		Year:      "2000-2010",
		MediaType: vocab.TVSeries,
		Genres:    []Entry{{Exclude, "ток-шоу"}},
		Countries: []Entry{{Include, "США"}},
	}

	got := BuildURL(testBase, s, testNow)

	assert.Contains(t, got, "rating.kp=2-5&year=2000-2010&type=tv-series&")
	assert.Contains(t, got, "genres.name=%21ток%21шоу")
	assert.Contains(t, got, "countries.name=%2BСША")

	query := strings.TrimPrefix(got, testBase)
	lists := query[strings.Index(query, "countries.name="):]
	assert.NotContains(t, lists, "+")
	assert.NotContains(t, lists, "-")
}

func TestBuildURL_OmitsEmptyParams(t *testing.T) {
	s := Defaults(testNow)
	s.Genres = []Entry{{Include, "драма"}}

	got := BuildURL(testBase, s, testNow)
	assert.NotContains(t, got, "type=")
	assert.NotContains(t, got, "countries.name=")
	assert.True(t, strings.HasSuffix(got, "&genres.name=%2Bдрама"))
}
