package kinopoisk

// Movie is a movie record as returned by the API. Every optional field is a
// pointer so a missing key and a zero value stay distinguishable.
type Movie struct {
	ID               int64       `json:"id"`
	Name             *string     `json:"name"`
	AlternativeName  *string     `json:"alternativeName"`
	Type             string      `json:"type"`
	Year             *int        `json:"year"`
	Description      *string     `json:"description"`
	ShortDescription *string     `json:"shortDescription"`
	Rating           *Rating     `json:"rating"`
	ExternalID       *ExternalID `json:"externalId"`
	Backdrop         *Image      `json:"backdrop"`
	MovieLength      *int        `json:"movieLength"`
}

type Rating struct {
	KP   *float64 `json:"kp"`
	IMDB *float64 `json:"imdb"`
}

type ExternalID struct {
	IMDB *string `json:"imdb"`
}

type Image struct {
	URL *string `json:"url"`
}

// SearchResult is the paged response of the title search endpoint.
type SearchResult struct {
	Docs  []Movie `json:"docs"`
	Total int     `json:"total"`
	Limit int     `json:"limit"`
	Page  int     `json:"page"`
	Pages int     `json:"pages"`
}
