package mirror

import (
	"fmt"
	"log"
)

// FileDownloader fetches a remote file, following at most one redirect hop.
// It reports the final resolved URL together with the payload. Implementations
// must fail when the payload exceeds maxSizeMB.
type FileDownloader interface {
	DownloadFile(url string, maxSizeMB int) (finalURL string, data []byte, err error)
}

// VideoDownloader retrieves a source video through the external download
// helper and returns the path of the produced file.
type VideoDownloader interface {
	DownloadVideo(id, ownerID int64, maxSizeMB int) (path string, err error)
}

// Resolver turns raw attachment descriptors into normalized attachments,
// downloading payloads and enforcing the upload size cap.
type Resolver struct {
	files     FileDownloader
	videos    VideoDownloader
	maxSizeMB int
}

// NewResolver creates a Resolver. maxSizeMB is the single explicit size cap
// applied to every downloadable attachment kind, audio included; it is shared
// with the destination platform's own upload limit.
func NewResolver(files FileDownloader, videos VideoDownloader, maxSizeMB int) (*Resolver, error) {
	if files == nil {
		return nil, fmt.Errorf("file downloader cannot be nil")
	}
	if videos == nil {
		return nil, fmt.Errorf("video downloader cannot be nil")
	}
	if maxSizeMB <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", maxSizeMB)
	}
	return &Resolver{files: files, videos: videos, maxSizeMB: maxSizeMB}, nil
}

// Resolve downloads and normalizes one raw attachment. ok is false when the
// attachment must be skipped: unsupported kind, failed download, or payload
// over the size cap. The caller is expected to drop the whole post on any
// skip, so a partially resolved post is never published.
func (r *Resolver) Resolve(raw RawAttachment) (att Attachment, ok bool) {
	switch a := raw.(type) {
	case RawPhoto:
		url := largestRendition(a.Sizes)
		finalURL, data, err := r.files.DownloadFile(url, r.maxSizeMB)
		if err != nil {
			log.Printf("[Resolve] photo %d: %v", a.ID, err)
			return nil, false
		}
		return Photo{URL: finalURL, Data: data, SourceID: a.ID}, true
	case RawVideo:
		path, err := r.videos.DownloadVideo(a.ID, a.OwnerID, r.maxSizeMB)
		if err != nil {
			log.Printf("[Resolve] video %d_%d: %v", a.OwnerID, a.ID, err)
			return nil, false
		}
		return Video{LocalFile: path, Duration: a.Duration}, true
	case RawGif:
		finalURL, data, err := r.files.DownloadFile(a.URL, r.maxSizeMB)
		if err != nil {
			log.Printf("[Resolve] gif %d: %v", a.ID, err)
			return nil, false
		}
		return Gif{Data: data, URL: finalURL, SourceID: a.ID}, true
	case RawAudio:
		_, data, err := r.files.DownloadFile(a.URL, r.maxSizeMB)
		if err != nil {
			log.Printf("[Resolve] audio %d: %v", a.ID, err)
			return nil, false
		}
		return Audio{Data: data, Artist: a.Artist, Title: a.Title, Duration: a.Duration}, true
	default:
		// Links are consumed by the converter and never reach the resolver;
		// anything else is an unsupported kind.
		return nil, false
	}
}

// largestRendition picks the rendition with the biggest width+height sum.
func largestRendition(sizes []PhotoSize) string {
	best := ""
	bestArea := -1
	for _, s := range sizes {
		if s.Width+s.Height > bestArea {
			bestArea = s.Width + s.Height
			best = s.URL
		}
	}
	return best
}
