package mirror

import (
	"errors"
	"fmt"
)

// MaxGroupSize is the largest number of attachments a single publication may
// carry, matching the Telegram media group limit.
const MaxGroupSize = 10

// ErrRateLimited marks a publish failure caused by the destination platform
// rate limit. The sync job treats it as a soft stop for the current pair.
var ErrRateLimited = errors.New("destination rate limited")

// WallPost is an immutable snapshot of one source wall post as fetched for the
// current run.
type WallPost struct {
	CreatedAt   int64 // epoch seconds
	Text        string
	IsPinned    bool
	IsRepost    bool
	Attachments []RawAttachment
}

// RawAttachment is a closed union over the source platform's attachment kinds.
// Each variant carries the identifiers and URLs needed to download it.
type RawAttachment interface {
	rawAttachment()
}

// PhotoSize is one available rendition of a photo.
type PhotoSize struct {
	URL    string
	Width  int
	Height int
}

type RawPhoto struct {
	ID    int64
	Sizes []PhotoSize
}

type RawVideo struct {
	ID       int64
	OwnerID  int64
	Duration int
}

// RawGif is a document attachment of the provider's animation sub-type.
type RawGif struct {
	ID  int64
	URL string
}

type RawAudio struct {
	ID       int64
	URL      string
	Artist   string
	Title    string
	Duration int
}

// RawLink is not resolved as an attachment; the converter consumes it for text
// augmentation.
type RawLink struct {
	URL string
}

type RawUnsupported struct {
	Kind string
}

func (RawPhoto) rawAttachment()       {}
func (RawVideo) rawAttachment()       {}
func (RawGif) rawAttachment()         {}
func (RawAudio) rawAttachment()       {}
func (RawLink) rawAttachment()        {}
func (RawUnsupported) rawAttachment() {}

// Attachment is the normalized, destination-ready attachment union. URL fields
// are the preferred low-cost delivery path; Data/LocalFile hold the downloaded
// payload used as a fallback.
type Attachment interface {
	attachment()
}

type Photo struct {
	URL      string
	Data     []byte
	SourceID int64
}

type Video struct {
	LocalFile string
	Duration  int // seconds
}

type Gif struct {
	Data     []byte
	URL      string
	SourceID int64
}

type Audio struct {
	Data     []byte
	Artist   string
	Title    string
	Duration int // seconds
}

func (Photo) attachment() {}
func (Video) attachment() {}
func (Gif) attachment()   {}
func (Audio) attachment() {}

// Publication is the destination-ready unit built from one accepted wall post.
// Text may be empty for attachment-only posts. Constructed once, never
// mutated.
type Publication struct {
	Text        string
	Attachments []Attachment
}

// NewPublication validates the publication invariants: it must carry text or
// at least one attachment, and never more than MaxGroupSize attachments.
func NewPublication(text string, attachments []Attachment) (Publication, error) {
	if text == "" && len(attachments) == 0 {
		return Publication{}, errors.New("publication must have text or attachments")
	}
	if len(attachments) > MaxGroupSize {
		return Publication{}, fmt.Errorf("publication has %d attachments, limit is %d", len(attachments), MaxGroupSize)
	}
	return Publication{Text: text, Attachments: attachments}, nil
}
