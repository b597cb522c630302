package mirror

import (
	"fmt"
	"log"
	"time"
)

// DefaultPageSize is the number of posts requested per wall page.
const DefaultPageSize = 100

// WallAPI provides paginated access to a source wall. Pages are returned
// newest first, the way the platform serves them.
type WallAPI interface {
	WallPage(source string, offset, count int) ([]WallPost, error)
}

// Fetcher retrieves new wall posts for a source, oldest first.
type Fetcher struct {
	wall     WallAPI
	pageSize int
	debug    bool
}

// NewFetcher creates a Fetcher over the given wall API.
func NewFetcher(wall WallAPI, debug bool) (*Fetcher, error) {
	if wall == nil {
		return nil, fmt.Errorf("wall API cannot be nil")
	}
	return &Fetcher{wall: wall, pageSize: DefaultPageSize, debug: debug}, nil
}

// Fetch returns every post of source created strictly after since, sorted by
// creation date ascending. A source with no new posts yields an empty slice,
// not an error.
//
// Pages are requested in fixed windows to bound memory and request cost. A
// leading pinned post is dropped from the first page only; the platform
// serves pinned items out of chronological order, so this must happen before
// the time-prefix comparison.
func (f *Fetcher) Fetch(since time.Time, source string) ([]WallPost, error) {
	logPrefix := fmt.Sprintf("[Fetch %s]", source)

	offset := 0
	page, err := f.wall.WallPage(source, offset, f.pageSize)
	if err != nil {
		return nil, fmt.Errorf("wall page at offset %d: %w", offset, err)
	}
	if len(page) == 0 {
		log.Printf("%s 0 posts found", logPrefix)
		return nil, nil
	}
	if page[0].IsPinned {
		page = page[1:]
	}

	var result []WallPost
	for len(page) > 0 {
		newPosts := 0
		for _, post := range page {
			if post.CreatedAt <= since.Unix() {
				break
			}
			newPosts++
		}
		result = append(result, page[:newPosts]...)
		if newPosts < len(page) {
			break
		}
		offset += f.pageSize
		page, err = f.wall.WallPage(source, offset, f.pageSize)
		if err != nil {
			return nil, fmt.Errorf("wall page at offset %d: %w", offset, err)
		}
	}

	// Reverse to chronological order so downstream processing and cursor
	// advancement are monotonic.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	if f.debug {
		log.Printf("%s %d new posts since %d", logPrefix, len(result), since.Unix())
	}
	return result, nil
}
