// Package vocab holds the fixed media type, genre and country vocabularies
// understood by the movie filter commands.
package vocab

import (
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// MediaType is the API code of a media type. The zero value means unset.
type MediaType string

const (
	Movie          MediaType = "movie"
	TVSeries       MediaType = "tv-series"
	Cartoon        MediaType = "cartoon"
	Anime          MediaType = "anime"
	AnimatedSeries MediaType = "animated-series"
)

var mediaTypes = []struct {
	code  MediaType
	label string
}{
	{Movie, "фильм"},
	{TVSeries, "сериал"},
	{Cartoon, "мультфильм"},
	{Anime, "аниме"},
	{AnimatedSeries, "мультсериал"},
}

var genres = []string{
	"аниме",
	"биография",
	"боевик",
	"вестерн",
	"военный",
	"детектив",
	"детский",
	"для взрослых",
	"документальный",
	"драма",
	"игра",
	"история",
	"комедия",
	"концерт",
	"короткометражка",
	"криминал",
	"мелодрама",
	"музыка",
	"мультфильм",
	"мюзикл",
	"новости",
	"приключения",
	"реальное ТВ",
	"семейный",
	"спорт",
	"ток-шоу",
	"триллер",
	"ужасы",
	"фантастика",
	"фильм-нуар",
	"фэнтези",
	"церемония",
}

var countries = []string{
	"Россия",
	"СССР",
	"США",
	"Великобритания",
	"Франция",
	"Германия",
	"Германия (ФРГ)",
	"Италия",
	"Испания",
	"Португалия",
	"Япония",
	"Китай",
	"Гонконг",
	"Тайвань",
	"Корея Южная",
	"Корея Северная",
	"Индия",
	"Канада",
	"Мексика",
	"Бразилия",
	"Аргентина",
	"Чили",
	"Колумбия",
	"Куба",
	"Австралия",
	"Новая Зеландия",
	"Швеция",
	"Норвегия",
	"Дания",
	"Финляндия",
	"Исландия",
	"Ирландия",
	"Нидерланды",
	"Бельгия",
	"Швейцария",
	"Австрия",
	"Польша",
	"Чехия",
	"Чехословакия",
	"Венгрия",
	"Румыния",
	"Болгария",
	"Сербия",
	"Хорватия",
	"Греция",
	"Турция",
	"Израиль",
	"Иран",
	"Египет",
	"ЮАР",
	"Таиланд",
	"Вьетнам",
	"Филиппины",
	"Индонезия",
	"Сингапур",
	"Малайзия",
	"Украина",
	"Беларусь",
	"Казахстан",
	"Грузия",
	"Армения",
	"Азербайджан",
	"Узбекистан",
	"Литва",
	"Латвия",
	"Эстония",
	"Доминиканская Республика",
	"Объединенные Арабские Эмираты",
	"Босния и Герцеговина",
}

// minCountryWord is the rune length a country word must exceed to be matchable.
const minCountryWord = 2

var (
	mediaTypeIndex = map[string]MediaType{}
	genreIndex     = map[string]string{}
	countryIndex   = map[string][]string{}
)

func init() {
	for _, mt := range mediaTypes {
		mediaTypeIndex[fold(mt.label)] = mt.code
	}
	for _, g := range genres {
		genreIndex[fold(g)] = g
	}
	for _, c := range countries {
		var seen []string
		for _, word := range strings.Fields(c) {
			if utf8.RuneCountInString(word) <= minCountryWord {
				continue
			}
			key := fold(word)
			if slices.Contains(seen, key) {
				continue
			}
			seen = append(seen, key)
			countryIndex[key] = append(countryIndex[key], c)
		}
	}
}

// fold case-folds s. A Caser is stateful, so a fresh one is used per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Label returns the human readable (Russian) label, or "" for unknown codes.
func (m MediaType) Label() string {
	for _, mt := range mediaTypes {
		if mt.code == m {
			return mt.label
		}
	}
	return ""
}

// MediaTypes returns all media type codes in vocabulary order.
func MediaTypes() []MediaType {
	out := make([]MediaType, 0, len(mediaTypes))
	for _, mt := range mediaTypes {
		out = append(out, mt.code)
	}
	return out
}

// LookupMediaType resolves a label, ignoring case, to its code.
func LookupMediaType(label string) (MediaType, bool) {
	mt, ok := mediaTypeIndex[fold(label)]
	return mt, ok
}

// Genres returns a copy of the canonical genre names.
func Genres() []string { return slices.Clone(genres) }

// LookupGenre resolves a genre name, ignoring case, to its canonical spelling.
func LookupGenre(name string) (string, bool) {
	g, ok := genreIndex[fold(name)]
	return g, ok
}

// Countries returns a copy of the canonical country names.
func Countries() []string { return slices.Clone(countries) }

// LookupCountry returns every canonical country that has word (ignoring case)
// among its words longer than two characters, in vocabulary order.
func LookupCountry(word string) []string {
	return slices.Clone(countryIndex[fold(word)])
}
