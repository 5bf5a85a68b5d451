package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 500
)

// PaginatedResponse wraps list results with pagination metadata.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination contains offset-based pagination info.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// paginate reads offset/limit from the query and slices items accordingly.
func paginate[T any](c *fiber.Ctx, items []T) ([]T, Pagination) {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", defaultPageLimit)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	total := len(items)
	page := []T{}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page = items[offset:end]
	}
	return page, Pagination{Offset: offset, Limit: limit, Total: total}
}

// SetLinkHeaders adds RFC 8288 Link headers for paginated responses.
func SetLinkHeaders(c *fiber.Ctx, p Pagination) {
	base := c.Path()
	var links []string

	links = append(links, fmt.Sprintf(`<%s?offset=0&limit=%d>; rel="first"`, base, p.Limit))

	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		links = append(links, fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="prev"`, base, prev, p.Limit))
	}

	if p.Offset+p.Limit < p.Total {
		links = append(links, fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="next"`, base, p.Offset+p.Limit, p.Limit))
	}

	lastOffset := p.Total - p.Limit
	if lastOffset < 0 {
		lastOffset = 0
	}
	links = append(links, fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="last"`, base, lastOffset, p.Limit))

	c.Set("Link", strings.Join(links, ", "))
}
