package vk

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
)

const bytesInMB = 1 << 20

// DownloadFile fetches the file at rawURL, following at most one redirect
// hop, and returns the final resolved URL with the payload. An empty URL
// (a blocked file) and a payload over maxSizeMB are both errors.
func (c *Client) DownloadFile(rawURL string, maxSizeMB int) (string, []byte, error) {
	if rawURL == "" {
		return "", nil, errors.New("empty file URL")
	}

	finalURL := rawURL
	resp, err := c.http.Get(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	if location := resp.Header.Get("Location"); resp.StatusCode >= 300 && resp.StatusCode < 400 && location != "" {
		resp.Body.Close()
		finalURL = location
		resp, err = c.http.Get(location)
		if err != nil {
			return "", nil, fmt.Errorf("get %s: %w", location, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("get %s: unexpected status %d", finalURL, resp.StatusCode)
	}

	limit := int64(maxSizeMB) * bytesInMB
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", finalURL, err)
	}
	if int64(len(data)) > limit {
		return "", nil, fmt.Errorf("file at %s exceeds %d MB cap", finalURL, maxSizeMB)
	}
	if c.debug {
		log.Printf("[Download] %s: %d bytes", finalURL, len(data))
	}
	return finalURL, data, nil
}
