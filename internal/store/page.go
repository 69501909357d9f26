package store

import "strings"

// Page selects a window of a listing. Pages are 1-based.
type Page struct {
	Number int
	Limit  int
}

// MaxPageLimit caps the page size a caller may request.
const MaxPageLimit = 100

// NewPage clamps number and limit into a valid page, using def as the limit
// when none was given.
func NewPage(number, limit, def int) Page {
	if number < 1 {
		number = 1
	}
	if limit < 1 {
		limit = def
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Number: number, Limit: limit}
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// TotalPages returns how many pages of this size cover total rows.
func (p Page) TotalPages(total int) int {
	if p.Limit <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// likePattern builds a case-insensitive substring pattern for LIKE with '\'
// as the escape character.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
