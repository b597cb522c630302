package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"vk-tg-mirror/internal/mirror"
	"vk-tg-mirror/pkg/telegoapi"
)

const (
	// MaxMessageTextLen is the longest text Telegram accepts in a single
	// message, in characters.
	MaxMessageTextLen = 4096
	// MaxCaptionLen is the longest text Telegram accepts as a media caption,
	// in characters.
	MaxCaptionLen = 1024
	// MaxUploadSizeMB is the bot API upload limit, shared with the attachment
	// resolver's download cap.
	MaxUploadSizeMB = 50
)

// Publisher sends publications to Telegram channels. Each Publish call is
// atomic from the caller's perspective: on failure every message already sent
// within the call is deleted before the error is returned.
type Publisher struct {
	bot   telegoapi.BotAPI
	debug bool
}

// NewPublisher creates a Publisher over the given bot API.
func NewPublisher(bot telegoapi.BotAPI, debug bool) (*Publisher, error) {
	if bot == nil {
		return nil, fmt.Errorf("bot API cannot be nil")
	}
	return &Publisher{bot: bot, debug: debug}, nil
}

// sendResult is the outcome of one send stage. Skipped means the stage
// produced no message because Telegram was temporarily unable to fetch the
// externally hosted media; that is not a failure and triggers no rollback.
type sendResult struct {
	MessageID int
	Skipped   bool
}

// Publish sends pub to the channel as one or more ordered messages, applying
// per-kind fallback strategies. On any send failure the messages already sent
// are rolled back and the original error is returned, wrapped with
// mirror.ErrRateLimited when the platform rate limit was hit.
func (p *Publisher) Publish(ctx context.Context, channelID int64, pub mirror.Publication) error {
	if p.debug {
		log.Printf("[Publish Channel:%d] text=%dB attachments=%d", channelID, len(pub.Text), len(pub.Attachments))
	}
	tx := &transaction{bot: p.bot, chatID: tu.ID(channelID), debug: p.debug}

	if len(pub.Attachments) == 0 {
		if pub.Text == "" {
			return errors.New("refusing to publish empty publication")
		}
		_, err := tx.sendText(ctx, pub.Text)
		return err
	}

	if err := tx.run(ctx, pub.Text, pub.Attachments); err != nil {
		tx.rollback(ctx)
		return err
	}
	return nil
}

// transaction accumulates the message ids produced by one publish attempt so
// they can be deleted on failure.
type transaction struct {
	bot    telegoapi.BotAPI
	chatID telego.ChatID
	debug  bool
	sent   []int
}

func (t *transaction) run(ctx context.Context, text string, attachments []mirror.Attachment) error {
	// Telegram's caption limit is in characters, not bytes.
	caption := ""
	if text != "" && utf8.RuneCountInString(text) <= MaxCaptionLen {
		caption = text
	}

	captionConsumed, err := t.sendPhotosAndVideos(ctx, attachments, caption)
	if err != nil {
		return err
	}
	if text != "" && (caption == "" || !captionConsumed) {
		if _, err := t.sendText(ctx, text); err != nil {
			return err
		}
	}
	if err := t.sendGifs(ctx, attachments); err != nil {
		return err
	}
	return t.sendAudios(ctx, attachments)
}

// sendPhotosAndVideos sends the photo/video attachments: a single send when
// there is exactly one, a grouped send with the caption on the first item
// otherwise. It reports whether the caption ended up inside a sent message.
func (t *transaction) sendPhotosAndVideos(ctx context.Context, attachments []mirror.Attachment, caption string) (bool, error) {
	var photosVideos []mirror.Attachment
	for _, att := range attachments {
		switch att.(type) {
		case mirror.Photo, mirror.Video:
			photosVideos = append(photosVideos, att)
		}
	}
	if len(photosVideos) == 0 {
		return false, nil
	}

	if len(photosVideos) == 1 {
		var res sendResult
		var err error
		switch att := photosVideos[0].(type) {
		case mirror.Photo:
			res, err = t.sendPhoto(ctx, att, caption)
		case mirror.Video:
			res, err = t.sendVideo(ctx, att, caption)
		}
		if err != nil {
			return false, err
		}
		return t.record(res), nil
	}
	res, err := t.sendMediaGroup(ctx, photosVideos, caption)
	if err != nil {
		return false, err
	}
	return t.record(res), nil
}

// sendPhoto prefers the low-cost URL delivery path and retries once with the
// downloaded bytes when Telegram rejects the URL.
func (t *transaction) sendPhoto(ctx context.Context, photo mirror.Photo, caption string) (sendResult, error) {
	msg, err := t.bot.SendPhoto(ctx, &telego.SendPhotoParams{
		ChatID:  t.chatID,
		Photo:   tu.FileFromURL(photo.URL),
		Caption: caption,
	})
	if err == nil {
		return sendResult{MessageID: msg.MessageID}, nil
	}
	if t.debug {
		log.Printf("[Publish] photo %d by URL failed, retrying with bytes: %v", photo.SourceID, err)
	}
	msg, err = t.bot.SendPhoto(ctx, &telego.SendPhotoParams{
		ChatID:  t.chatID,
		Photo:   tu.File(tu.NameReader(bytes.NewReader(photo.Data), fmt.Sprintf("photo_%d", photo.SourceID))),
		Caption: caption,
	})
	return t.outcome(msg, err, "send photo")
}

func (t *transaction) sendVideo(ctx context.Context, video mirror.Video, caption string) (sendResult, error) {
	file, err := os.Open(video.LocalFile)
	if err != nil {
		return sendResult{}, fmt.Errorf("open video file: %w", err)
	}
	defer file.Close()

	msg, err := t.bot.SendVideo(ctx, &telego.SendVideoParams{
		ChatID:   t.chatID,
		Video:    tu.File(file),
		Duration: video.Duration,
		Caption:  caption,
	})
	return t.outcome(msg, err, "send video")
}

func (t *transaction) sendMediaGroup(ctx context.Context, photosVideos []mirror.Attachment, caption string) (sendResult, error) {
	var openFiles []*os.File
	defer func() {
		for _, f := range openFiles {
			f.Close()
		}
	}()

	media := make([]telego.InputMedia, 0, len(photosVideos))
	for i, att := range photosVideos {
		itemCaption := ""
		if i == 0 {
			itemCaption = caption
		}
		switch a := att.(type) {
		case mirror.Photo:
			item := tu.MediaPhoto(tu.FileFromURL(a.URL))
			item.Caption = itemCaption
			media = append(media, item)
		case mirror.Video:
			file, err := os.Open(a.LocalFile)
			if err != nil {
				return sendResult{}, fmt.Errorf("open video file: %w", err)
			}
			openFiles = append(openFiles, file)
			item := tu.MediaVideo(tu.File(file))
			item.Duration = a.Duration
			item.Caption = itemCaption
			media = append(media, item)
		}
	}

	msgs, err := t.bot.SendMediaGroup(ctx, tu.MediaGroup(t.chatID, media...))
	if err != nil {
		return t.outcome(nil, err, "send media group")
	}
	if len(msgs) == 0 {
		return sendResult{}, errors.New("send media group: empty response")
	}
	// Record every message of the group; rollback must remove them all.
	for _, msg := range msgs[1:] {
		t.sent = append(t.sent, msg.MessageID)
	}
	return sendResult{MessageID: msgs[0].MessageID}, nil
}

func (t *transaction) sendText(ctx context.Context, text string) (sendResult, error) {
	msg, err := t.bot.SendMessage(ctx, tu.Message(t.chatID, text))
	res, err := t.outcome(msg, err, "send text")
	if err != nil {
		return res, err
	}
	t.record(res)
	return res, nil
}

// sendGifs sends each gif individually, preferring animation delivery and
// falling back to a plain video built from the downloaded bytes.
func (t *transaction) sendGifs(ctx context.Context, attachments []mirror.Attachment) error {
	for _, att := range attachments {
		gif, ok := att.(mirror.Gif)
		if !ok {
			continue
		}
		msg, err := t.bot.SendAnimation(ctx, &telego.SendAnimationParams{
			ChatID:    t.chatID,
			Animation: tu.FileFromURL(gif.URL),
		})
		if err != nil {
			if t.debug {
				log.Printf("[Publish] gif %d as animation failed, sending as video: %v", gif.SourceID, err)
			}
			msg, err = t.bot.SendVideo(ctx, &telego.SendVideoParams{
				ChatID: t.chatID,
				Video:  tu.File(tu.NameReader(bytes.NewReader(gif.Data), fmt.Sprintf("gif_%d", gif.SourceID))),
			})
		}
		res, err := t.outcome(msg, err, "send gif")
		if err != nil {
			return err
		}
		t.record(res)
	}
	return nil
}

func (t *transaction) sendAudios(ctx context.Context, attachments []mirror.Attachment) error {
	for _, att := range attachments {
		audio, ok := att.(mirror.Audio)
		if !ok {
			continue
		}
		msg, err := t.bot.SendAudio(ctx, &telego.SendAudioParams{
			ChatID:    t.chatID,
			Audio:     tu.File(tu.NameReader(bytes.NewReader(audio.Data), audio.Title)),
			Performer: audio.Artist,
			Title:     audio.Title,
			Duration:  audio.Duration,
		})
		res, err := t.outcome(msg, err, "send audio")
		if err != nil {
			return err
		}
		t.record(res)
	}
	return nil
}

// record adds a non-skipped result to the sent-message record and reports
// whether a message was actually produced.
func (t *transaction) record(res sendResult) bool {
	if res.Skipped {
		return false
	}
	t.sent = append(t.sent, res.MessageID)
	return true
}

// outcome converts a raw API reply into a stage outcome value. The transient
// "unable to fetch remote content" condition becomes a Skipped result; a rate
// limit failure is wrapped so the sync job can recognize it.
func (t *transaction) outcome(msg *telego.Message, err error, stage string) (sendResult, error) {
	if err == nil {
		if msg == nil {
			return sendResult{}, fmt.Errorf("%s: empty response", stage)
		}
		return sendResult{MessageID: msg.MessageID}, nil
	}
	if isContentFetchFailure(err) {
		// Telegram occasionally cannot fetch externally hosted media for
		// hours at a time. Treated as a stage that produced no message.
		log.Printf("[Publish] %s: remote content unavailable, message skipped: %v", stage, err)
		return sendResult{Skipped: true}, nil
	}
	if isRateLimited(err) {
		return sendResult{}, fmt.Errorf("%s: %w: %v", stage, mirror.ErrRateLimited, err)
	}
	return sendResult{}, fmt.Errorf("%s: %w", stage, err)
}

// rollback deletes every message recorded during this publish attempt so the
// channel retains no partial artifacts.
func (t *transaction) rollback(ctx context.Context) {
	for _, id := range t.sent {
		err := t.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
			ChatID:    t.chatID,
			MessageID: id,
		})
		if err != nil {
			log.Printf("[Publish] rollback: failed to delete message %d: %v", id, err)
		}
	}
	if len(t.sent) > 0 {
		log.Printf("[Publish] rolled back %d messages", len(t.sent))
	}
}

func isContentFetchFailure(err error) bool {
	return strings.Contains(err.Error(), "WEBPAGE_MEDIA_EMPTY")
}

func isRateLimited(err error) bool {
	return strings.Contains(err.Error(), "Too Many Requests")
}
