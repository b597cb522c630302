package vk

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SevereCloud/vksdk/v2/api"
	"github.com/SevereCloud/vksdk/v2/object"
	"go.uber.org/ratelimit"

	"vk-tg-mirror/internal/mirror"
)

// VK allows 3 requests per second for a service token; page fetches are paced
// accordingly.
const requestsPerSecond = 3

// Document attachment sub-type for animations.
const docTypeGif = 3

// Client is the VK-backed implementation of the wall and download
// dependencies of the mirror package.
type Client struct {
	api     *api.VK
	limiter ratelimit.Limiter
	http    *http.Client
	tempDir string
	debug   bool
}

// NewClient creates a Client authorized by a service access token. tempDir is
// where the video download helper places its output files.
func NewClient(accessToken, tempDir string, debug bool) (*Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token cannot be empty")
	}
	if tempDir == "" {
		return nil, fmt.Errorf("temp dir cannot be empty")
	}
	return &Client{
		api:     api.NewVK(accessToken),
		limiter: ratelimit.New(requestsPerSecond),
		http: &http.Client{
			Timeout: 2 * time.Minute,
			// Redirects are followed manually, one hop at most, so the final
			// resolved URL can be reported to the caller.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		tempDir: tempDir,
		debug:   debug,
	}, nil
}

// WallPage returns one page of the source's wall, newest first, filtered to
// the owner's original posts.
func (c *Client) WallPage(source string, offset, count int) ([]mirror.WallPost, error) {
	c.limiter.Take()

	resp, err := c.api.WallGet(api.Params{
		"domain": source,
		"offset": offset,
		"count":  count,
		"filter": "owner",
	})
	if err != nil {
		return nil, fmt.Errorf("wall.get %s offset %d: %w", source, offset, err)
	}

	posts := make([]mirror.WallPost, 0, len(resp.Items))
	for _, item := range resp.Items {
		posts = append(posts, mapPost(item))
	}
	return posts, nil
}

func mapPost(item object.WallWallpost) mirror.WallPost {
	attachments := make([]mirror.RawAttachment, 0, len(item.Attachments))
	for _, att := range item.Attachments {
		attachments = append(attachments, mapAttachment(att))
	}
	return mirror.WallPost{
		CreatedAt:   int64(item.Date),
		Text:        item.Text,
		IsPinned:    bool(item.IsPinned),
		IsRepost:    len(item.CopyHistory) > 0,
		Attachments: attachments,
	}
}

func mapAttachment(att object.WallWallpostAttachment) mirror.RawAttachment {
	switch att.Type {
	case "photo":
		sizes := make([]mirror.PhotoSize, 0, len(att.Photo.Sizes))
		for _, s := range att.Photo.Sizes {
			sizes = append(sizes, mirror.PhotoSize{URL: s.URL, Width: int(s.Width), Height: int(s.Height)})
		}
		return mirror.RawPhoto{ID: int64(att.Photo.ID), Sizes: sizes}
	case "video":
		return mirror.RawVideo{
			ID:       int64(att.Video.ID),
			OwnerID:  int64(att.Video.OwnerID),
			Duration: att.Video.Duration,
		}
	case "doc":
		if att.Doc.Type == docTypeGif {
			return mirror.RawGif{ID: int64(att.Doc.ID), URL: att.Doc.URL}
		}
		return mirror.RawUnsupported{Kind: fmt.Sprintf("doc/%d", att.Doc.Type)}
	case "audio":
		return mirror.RawAudio{
			ID:       int64(att.Audio.ID),
			URL:      att.Audio.URL,
			Artist:   att.Audio.Artist,
			Title:    att.Audio.Title,
			Duration: att.Audio.Duration,
		}
	case "link":
		return mirror.RawLink{URL: att.Link.URL}
	default:
		return mirror.RawUnsupported{Kind: att.Type}
	}
}
