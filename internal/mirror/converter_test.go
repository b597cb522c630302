package mirror

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testMaxTextLen = 4096

func newTestConverter(t *testing.T) (*Converter, *MockFileDownloader, *MockVideoDownloader) {
	t.Helper()
	resolver, files, videos := newTestResolver(t)
	c, err := NewConverter(resolver, testMaxTextLen)
	require.NoError(t, err)
	return c, files, videos
}

func TestConvertTextOnly(t *testing.T) {
	c, _, _ := newTestConverter(t)

	pub := c.Convert(WallPost{Text: "wall post text"})

	require.NotNil(t, pub)
	assert.Equal(t, "wall post text", pub.Text)
	assert.Empty(t, pub.Attachments)
}

func TestConvertExcludesReposts(t *testing.T) {
	c, _, _ := newTestConverter(t)

	pub := c.Convert(WallPost{Text: "reposted", IsRepost: true})

	assert.Nil(t, pub)
}

func TestConvertExcludesEmptyPosts(t *testing.T) {
	c, _, _ := newTestConverter(t)

	pub := c.Convert(WallPost{Text: ""})

	assert.Nil(t, pub)
}

func TestConvertExpandsExternalLinkMarkup(t *testing.T) {
	c, _, _ := newTestConverter(t)

	pub := c.Convert(WallPost{Text: "see [https://example.com/page|the docs] for more"})

	require.NotNil(t, pub)
	assert.Equal(t, "see the docs (https://example.com/page) for more", pub.Text)
}

func TestConvertUnwrapsInternalMentions(t *testing.T) {
	c, _, _ := newTestConverter(t)

	pub := c.Convert(WallPost{Text: "thanks to [club1|Our Community] and [id2|Ivan]"})

	require.NotNil(t, pub)
	assert.Equal(t, "thanks to Our Community and Ivan", pub.Text)
}

func TestConvertAppendsLinkAttachment(t *testing.T) {
	c, _, _ := newTestConverter(t)
	post := WallPost{
		Text:        "wall post text",
		Attachments: []RawAttachment{RawLink{URL: "https://example.com/article"}},
	}

	pub := c.Convert(post)

	require.NotNil(t, pub)
	assert.Equal(t, "wall post text\n\nhttps://example.com/article", pub.Text)
}

func TestConvertDoesNotDuplicateLinkAlreadyInText(t *testing.T) {
	c, _, _ := newTestConverter(t)
	post := WallPost{
		Text:        "the link https://example.com/article is right here",
		Attachments: []RawAttachment{RawLink{URL: "https://example.com/article"}},
	}

	pub := c.Convert(post)

	require.NotNil(t, pub)
	assert.Equal(t, post.Text, pub.Text)
}

func TestConvertLinkOnlyPost(t *testing.T) {
	c, _, _ := newTestConverter(t)
	post := WallPost{
		Attachments: []RawAttachment{RawLink{URL: "https://example.com/article"}},
	}

	pub := c.Convert(post)

	require.NotNil(t, pub)
	assert.Equal(t, "https://example.com/article", pub.Text)
	assert.Empty(t, pub.Attachments)
}

func TestConvertExcludesOverlongText(t *testing.T) {
	c, files, _ := newTestConverter(t)
	post := WallPost{
		Text:        strings.Repeat("9", testMaxTextLen+1),
		Attachments: []RawAttachment{RawPhoto{ID: 1, Sizes: []PhotoSize{{URL: "u", Width: 1, Height: 1}}}},
	}

	pub := c.Convert(post)

	assert.Nil(t, pub)
	files.AssertNotCalled(t, "DownloadFile", mock.Anything, mock.Anything)
}

func TestConvertTextLimitCountsCharactersNotBytes(t *testing.T) {
	c, _, _ := newTestConverter(t)
	// 2500 Cyrillic characters are 5000 UTF-8 bytes, still under the limit.
	text := strings.Repeat("ж", 2500)

	pub := c.Convert(WallPost{Text: text})

	require.NotNil(t, pub)
	assert.Equal(t, text, pub.Text)

	assert.Nil(t, c.Convert(WallPost{Text: strings.Repeat("ж", testMaxTextLen+1)}))
}

func TestConvertRemovesDownloadedVideoOnExclusion(t *testing.T) {
	c, files, videos := newTestConverter(t)
	videoPath := filepath.Join(t.TempDir(), "1_2.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("mp4"), 0o644))
	videos.On("DownloadVideo", int64(2), int64(1), testMaxSizeMB).
		Return(videoPath, nil).Once()
	files.On("DownloadFile", "https://cdn/p.jpg", testMaxSizeMB).
		Return("", nil, errors.New("file exceeds 50 MB cap")).Once()
	post := WallPost{
		Text: "video then broken photo",
		Attachments: []RawAttachment{
			RawVideo{ID: 2, OwnerID: 1},
			RawPhoto{ID: 3, Sizes: []PhotoSize{{URL: "https://cdn/p.jpg", Width: 1, Height: 1}}},
		},
	}

	pub := c.Convert(post)

	assert.Nil(t, pub)
	_, err := os.Stat(videoPath)
	assert.True(t, os.IsNotExist(err), "excluded post must not leak its temp video file")
}

func TestConvertExcludesPostWhenAnyAttachmentSkipped(t *testing.T) {
	c, files, videos := newTestConverter(t)
	files.On("DownloadFile", "https://cdn/p.jpg", testMaxSizeMB).
		Return("https://cdn/p.jpg", []byte("jpeg"), nil).Once()
	videos.On("DownloadVideo", int64(5), int64(6), testMaxSizeMB).
		Return("", errors.New("helper failed")).Once()
	post := WallPost{
		Text: "photo and video",
		Attachments: []RawAttachment{
			RawPhoto{ID: 1, Sizes: []PhotoSize{{URL: "https://cdn/p.jpg", Width: 1, Height: 1}}},
			RawVideo{ID: 5, OwnerID: 6},
		},
	}

	pub := c.Convert(post)

	assert.Nil(t, pub)
}

func TestConvertPreservesAttachmentOrder(t *testing.T) {
	c, files, videos := newTestConverter(t)
	files.On("DownloadFile", "https://cdn/p.jpg", testMaxSizeMB).
		Return("https://cdn/p.jpg", []byte("jpeg"), nil).Once()
	files.On("DownloadFile", "https://cdn/a.mp3", testMaxSizeMB).
		Return("https://cdn/a.mp3", []byte("mp3"), nil).Once()
	videos.On("DownloadVideo", int64(5), int64(6), testMaxSizeMB).
		Return("/tmp/6_5.mp4", nil).Once()
	post := WallPost{
		Text: "mixed",
		Attachments: []RawAttachment{
			RawPhoto{ID: 1, Sizes: []PhotoSize{{URL: "https://cdn/p.jpg", Width: 1, Height: 1}}},
			RawVideo{ID: 5, OwnerID: 6, Duration: 10},
			RawAudio{ID: 9, URL: "https://cdn/a.mp3", Artist: "a", Title: "t", Duration: 60},
		},
	}

	pub := c.Convert(post)

	require.NotNil(t, pub)
	require.Len(t, pub.Attachments, 3)
	assert.IsType(t, Photo{}, pub.Attachments[0])
	assert.IsType(t, Video{}, pub.Attachments[1])
	assert.IsType(t, Audio{}, pub.Attachments[2])
}

func TestConvertTooManyAttachmentsExcluded(t *testing.T) {
	c, files, _ := newTestConverter(t)
	files.On("DownloadFile", mock.Anything, testMaxSizeMB).
		Return("https://cdn/p.jpg", []byte("jpeg"), nil)

	var raw []RawAttachment
	for i := 0; i < MaxGroupSize+1; i++ {
		raw = append(raw, RawPhoto{ID: int64(i), Sizes: []PhotoSize{{URL: "u", Width: 1, Height: 1}}})
	}

	pub := c.Convert(WallPost{Text: "spam", Attachments: raw})

	assert.Nil(t, pub)
}
