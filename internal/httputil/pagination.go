package httputil

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Page is a validated page/per_page pair. Page numbers start at 1.
type Page struct {
	Number  int
	PerPage int
}

// ParsePagination reads page and per_page from q. Missing values default to
// the first page of DefaultPerPage items; a page below 1 is clamped to 1.
func ParsePagination(q url.Values) (Page, error) {
	p := Page{Number: 1, PerPage: DefaultPerPage}

	if s := q.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Page{}, fmt.Errorf("invalid page parameter: must be an integer")
		}
		if n > 1 {
			p.Number = n
		}
	}

	if s := q.Get("per_page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Page{}, fmt.Errorf("invalid per_page parameter: must be an integer")
		}
		if n < 1 || n > MaxPerPage {
			return Page{}, fmt.Errorf("per_page must be between 1 and %d", MaxPerPage)
		}
		p.PerPage = n
	}

	return p, nil
}
