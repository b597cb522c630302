package mirror

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode/utf8"
)

// markupRe matches the source platform's inline bracketed markup
// [target|label] used for both mentions and links.
var markupRe = regexp.MustCompile(`\[([^\[\]|]+)\|([^\[\]]+)\]`)

// Converter decides whether a wall post is publishable and builds the
// destination-ready Publication for it.
type Converter struct {
	resolver   *Resolver
	maxTextLen int
}

// NewConverter creates a Converter. maxTextLen is the destination's
// single-message text limit in characters; posts whose final text exceeds it
// are excluded.
func NewConverter(resolver *Resolver, maxTextLen int) (*Converter, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if maxTextLen <= 0 {
		return nil, fmt.Errorf("max text length must be positive, got %d", maxTextLen)
	}
	return &Converter{resolver: resolver, maxTextLen: maxTextLen}, nil
}

// Convert maps a wall post to a Publication. A nil result means the post is
// intentionally excluded: it is a repost, its text exceeds the message limit,
// an attachment failed to resolve, or nothing publishable is left.
func (c *Converter) Convert(post WallPost) *Publication {
	if post.IsRepost {
		return nil
	}

	text := expandMarkup(post.Text)
	if link, ok := standaloneLink(post.Attachments); ok && !strings.Contains(text, link) {
		if text == "" {
			text = link
		} else {
			text += "\n\n" + link
		}
	}
	// Telegram counts characters, not bytes; mostly-Cyrillic text is twice
	// its character count in UTF-8.
	if utf8.RuneCountInString(text) > c.maxTextLen {
		log.Printf("[Convert] post at %d excluded: text length %d over limit %d", post.CreatedAt, utf8.RuneCountInString(text), c.maxTextLen)
		return nil
	}

	var attachments []Attachment
	for _, raw := range post.Attachments {
		if _, isLink := raw.(RawLink); isLink {
			continue
		}
		att, ok := c.resolver.Resolve(raw)
		if !ok {
			// All-or-nothing: never publish a post with attachments
			// silently missing.
			log.Printf("[Convert] post at %d excluded: attachment skipped", post.CreatedAt)
			removeLocalFiles(attachments)
			return nil
		}
		attachments = append(attachments, att)
	}

	pub, err := NewPublication(text, attachments)
	if err != nil {
		log.Printf("[Convert] post at %d excluded: %v", post.CreatedAt, err)
		removeLocalFiles(attachments)
		return nil
	}
	return &pub
}

// expandMarkup rewrites [target|label] occurrences: external links become
// "label (target)", internal mentions are reduced to the bare label.
func expandMarkup(text string) string {
	return markupRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := markupRe.FindStringSubmatch(match)
		target, label := sub[1], sub[2]
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			return fmt.Sprintf("%s (%s)", label, target)
		}
		return label
	})
}

// standaloneLink returns the URL of the post's link attachment, if any.
func standaloneLink(attachments []RawAttachment) (string, bool) {
	for _, raw := range attachments {
		if link, ok := raw.(RawLink); ok && link.URL != "" {
			return link.URL, true
		}
	}
	return "", false
}
