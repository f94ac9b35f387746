// internal/github/pagination.go
package github

import (
	"net/url"
	"strconv"
	"strings"
)

// ParseNextPage extracts the page number of the rel="next" entry from a raw
// Link header. The second return value is false when no next page exists,
// which signals the last page has been reached.
func ParseNextPage(linkHeader string) (int, bool) {
	return pageForRel(linkHeader, "next")
}

// ParseLastPage extracts the page number of the rel="last" entry from a raw
// Link header. It is used once per process to derive total counts.
func ParseLastPage(linkHeader string) (int, bool) {
	return pageForRel(linkHeader, "last")
}

// pageForRel scans a comma-separated Link header for the entry tagged with
// the given relation and returns its "page" query parameter. Entries look
// like: <https://api.github.com/orgs/x/repos?page=3>; rel="next"
func pageForRel(linkHeader, rel string) (int, bool) {
	for _, entry := range strings.Split(linkHeader, ",") {
		sections := strings.Split(entry, ";")
		if len(sections) < 2 {
			continue
		}

		tagged := false
		for _, param := range sections[1:] {
			if strings.TrimSpace(param) == `rel="`+rel+`"` {
				tagged = true
				break
			}
		}
		if !tagged {
			continue
		}

		rawURL := strings.TrimSpace(sections[0])
		rawURL = strings.TrimPrefix(rawURL, "<")
		rawURL = strings.TrimSuffix(rawURL, ">")

		u, err := url.Parse(rawURL)
		if err != nil {
			continue
		}
		page, err := strconv.Atoi(u.Query().Get("page"))
		if err != nil || page < 1 {
			continue
		}
		return page, true
	}
	return 0, false
}
