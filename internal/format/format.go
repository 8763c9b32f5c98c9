// Package format renders movie records as Telegram Markdown messages with
// inline link buttons.
package format

import (
	"errors"
	"strconv"
	"strings"

	"github.com/handsomefox/kinochat/internal/kinopoisk"
	"github.com/handsomefox/kinochat/internal/vocab"
)

const (
	NoTitle       = "У фильма нет названия"
	NoDescription = "Описание отсутствует."
	NoRating      = "—"

	gridWidth = 3

	imdbHome = "https://www.imdb.com/"
)

var ErrNothingToFormat = errors.New("format: nothing to format")

type Button struct {
	Text string
	URL  string
}

// Keyboard is a grid of URL buttons, one slice per row.
type Keyboard [][]Button

type Message struct {
	Text     string
	Keyboard Keyboard
}

// Card is a movie with every optional field resolved to its display value.
type Card struct {
	ID               int64
	Name             string
	AlternativeName  string
	TypeLabel        string
	Year             string
	Description      string
	ShortDescription string
	RatingKP         string
	RatingIMDB       string
	Length           int
	PosterURL        string

	CatalogURL string
	IMDBURL    string
	WatchURL   string
}

// CardFrom maps m to a Card, substituting placeholders for missing fields.
func CardFrom(m *kinopoisk.Movie) Card {
	c := Card{
		ID:               m.ID,
		Name:             deref(m.Name),
		AlternativeName:  deref(m.AlternativeName),
		TypeLabel:        vocab.MediaType(m.Type).Label(),
		Description:      orDefault(deref(m.Description), NoDescription),
		ShortDescription: orDefault(deref(m.ShortDescription), NoDescription),
		RatingKP:         NoRating,
		RatingIMDB:       NoRating,
		IMDBURL:          imdbHome,
	}
	if m.Year != nil {
		c.Year = strconv.Itoa(*m.Year)
	}
	if m.Rating != nil {
		c.RatingKP = rating(m.Rating.KP)
		c.RatingIMDB = rating(m.Rating.IMDB)
	}
	if m.MovieLength != nil {
		c.Length = *m.MovieLength
	}
	if m.Backdrop != nil {
		c.PosterURL = deref(m.Backdrop.URL)
	}

	id := strconv.FormatInt(m.ID, 10)
	section := "film"
	if vocab.MediaType(m.Type) == vocab.TVSeries {
		section = "series"
	}
	c.CatalogURL = "https://www.kinopoisk.ru/" + section + "/" + id
	if m.ExternalID != nil && deref(m.ExternalID.IMDB) != "" {
		c.IMDBURL = "https://www.imdb.com/title/" + *m.ExternalID.IMDB
	}
	c.WatchURL = "https://reyohoho.github.io/reyohoho/#" + id
	return c
}

// TitleLine is the bold "name / alternative name" heading.
func (c Card) TitleLine() string {
	switch {
	case c.Name != "" && c.AlternativeName != "":
		return "*" + c.Name + "* / *" + c.AlternativeName + "*"
	case c.Name != "":
		return "*" + c.Name + "*"
	case c.AlternativeName != "":
		return "*" + c.AlternativeName + "*"
	}
	return NoTitle
}

// Title is the plain title used on buttons.
func (c Card) Title() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.AlternativeName != "":
		return c.AlternativeName
	}
	return NoTitle
}

func (c Card) render(description string) string {
	var b strings.Builder
	b.WriteString(c.TitleLine())
	b.WriteString(", ")
	b.WriteString(c.TypeLabel)
	b.WriteString(", ")
	b.WriteString(c.Year)
	b.WriteByte('\n')
	if c.Length > 0 {
		b.WriteString("Продолжительность фильма *")
		b.WriteString(strconv.Itoa(c.Length))
		b.WriteString("* мин.\n")
	}
	b.WriteString("[Кинопоиск](" + c.CatalogURL + ") *" + c.RatingKP + "*, ")
	b.WriteString("[IMDB](" + c.IMDBURL + ") *" + c.RatingIMDB + "*\n")
	b.WriteString("`" + description + "`")
	return b.String()
}

// One renders a single movie with its full description and a
// [Кинопоиск, Смотреть] button row.
func One(m *kinopoisk.Movie) (Message, error) {
	if m == nil {
		return Message{}, ErrNothingToFormat
	}
	c := CardFrom(m)
	return Message{
		Text: c.render(c.Description),
		Keyboard: Keyboard{{
			{Text: "Кинопоиск", URL: c.CatalogURL},
			{Text: "Смотреть", URL: c.WatchURL},
		}},
	}, nil
}

// Many renders movies separated by a blank line, using short descriptions,
// with one watch button per movie laid out three per row.
func Many(movies []kinopoisk.Movie) (Message, error) {
	if len(movies) == 0 {
		return Message{}, ErrNothingToFormat
	}

	parts := make([]string, 0, len(movies))
	var kb Keyboard
	for i := range movies {
		c := CardFrom(&movies[i])
		parts = append(parts, c.render(c.ShortDescription))

		btn := Button{Text: c.Title() + " (" + c.Year + ")", URL: c.WatchURL}
		if i%gridWidth == 0 {
			kb = append(kb, []Button{})
		}
		kb[len(kb)-1] = append(kb[len(kb)-1], btn)
	}
	return Message{Text: strings.Join(parts, "\n\n"), Keyboard: kb}, nil
}

func rating(v *float64) string {
	if v == nil {
		return NoRating
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
