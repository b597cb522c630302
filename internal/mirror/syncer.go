package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// Pair is one configured source→destination mapping.
type Pair struct {
	// Source is the wall being mirrored from. Used as the cursor key, so it
	// must not contain spaces.
	Source string
	// ChannelID is the destination broadcast channel.
	ChannelID int64
	// SeedTimestamp is used only when no cursor entry exists for Source.
	// Zero means mirror from the beginning of time.
	SeedTimestamp int64
}

// CursorStore persists the timestamp of the last successfully published post
// per source.
type CursorStore interface {
	Get(key string) (ts int64, found bool, err error)
	Set(key string, ts int64) error
}

// Publisher sends one publication to a destination channel atomically.
type Publisher interface {
	Publish(ctx context.Context, channelID int64, pub Publication) error
}

// Syncer orchestrates one mirroring run: read cursor → fetch → convert →
// publish each post in order → advance and persist cursor. Pairs are
// processed strictly sequentially; a failure on one pair never blocks the
// others.
type Syncer struct {
	fetcher   *Fetcher
	converter *Converter
	publisher Publisher
	cursors   CursorStore
	pairs     []Pair
}

// NewSyncer creates a Syncer from its dependencies.
func NewSyncer(fetcher *Fetcher, converter *Converter, publisher Publisher, cursors CursorStore, pairs []Pair) (*Syncer, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if converter == nil {
		return nil, fmt.Errorf("converter cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if cursors == nil {
		return nil, fmt.Errorf("cursor store cannot be nil")
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("at least one source/channel pair is required")
	}
	return &Syncer{
		fetcher:   fetcher,
		converter: converter,
		publisher: publisher,
		cursors:   cursors,
		pairs:     pairs,
	}, nil
}

// Run processes every configured pair once. Pair-level failures are logged
// and captured, not returned, so one wall's trouble does not block the rest.
func (s *Syncer) Run(ctx context.Context) {
	for _, pair := range s.pairs {
		if ctx.Err() != nil {
			log.Printf("[Sync] run cancelled: %v", ctx.Err())
			return
		}
		if err := s.syncPair(ctx, pair); err != nil {
			log.Printf("[Sync %s] pair failed: %v", pair.Source, err)
			sentry.CaptureException(fmt.Errorf("sync pair %s: %w", pair.Source, err))
		}
	}
}

func (s *Syncer) syncPair(ctx context.Context, pair Pair) error {
	logPrefix := fmt.Sprintf("[Sync %s]", pair.Source)

	since, err := s.resumePoint(pair)
	if err != nil {
		return err
	}

	posts, err := s.fetcher.Fetch(since, pair.Source)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	published := 0
	for _, post := range posts {
		pub := s.converter.Convert(post)
		if pub == nil {
			continue
		}

		err := s.publisher.Publish(ctx, pair.ChannelID, *pub)
		removeLocalFiles(pub.Attachments)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				// Soft stop: already-published posts stay published and the
				// cursor reflects them; the rest is picked up next run.
				log.Printf("%s rate limited after %d posts, stopping pair", logPrefix, published)
				return nil
			}
			return fmt.Errorf("publish post at %d: %w", post.CreatedAt, err)
		}
		published++

		if err := s.cursors.Set(pair.Source, post.CreatedAt); err != nil {
			return fmt.Errorf("persist cursor: %w", err)
		}
	}

	if published > 0 {
		log.Printf("%s published %d posts to channel %d", logPrefix, published, pair.ChannelID)
	}
	return nil
}

// resumePoint returns the instant to fetch from: the persisted cursor, the
// configured seed, or the Unix epoch when neither exists.
func (s *Syncer) resumePoint(pair Pair) (time.Time, error) {
	ts, found, err := s.cursors.Get(pair.Source)
	if err != nil {
		return time.Time{}, fmt.Errorf("read cursor: %w", err)
	}
	if found {
		return time.Unix(ts, 0), nil
	}
	return time.Unix(pair.SeedTimestamp, 0), nil
}

// removeLocalFiles deletes temp files produced by the video download helper.
// Called after every publish attempt and on converter exclusion paths; a post
// that failed to publish is re-fetched and re-downloaded next run, so the
// files are removed regardless of the outcome.
func removeLocalFiles(attachments []Attachment) {
	for _, att := range attachments {
		if video, ok := att.(Video); ok && video.LocalFile != "" {
			if err := os.Remove(video.LocalFile); err != nil && !os.IsNotExist(err) {
				log.Printf("[Sync] failed to remove temp video %s: %v", video.LocalFile, err)
			}
		}
	}
}
