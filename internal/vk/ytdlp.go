package vk

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	ytdlpBin       = "yt-dlp"
	maxVideoHeight = 720
)

// DownloadVideo retrieves the video identified by ownerID and id through the
// yt-dlp helper, capped at maxVideoHeight and maxSizeMB, and returns the path
// of the produced file.
func (c *Client) DownloadVideo(id, ownerID int64, maxSizeMB int) (string, error) {
	url := fmt.Sprintf("https://vk.com/video%d_%d", ownerID, id)
	outPath := filepath.Join(c.tempDir, fmt.Sprintf("%d_%d.mp4", ownerID, id))

	cmd := exec.Command(ytdlpBin,
		"--max-filesize", fmt.Sprintf("%dM", maxSizeMB),
		"-f", fmt.Sprintf("best[height<=%d]", maxVideoHeight),
		"--force-overwrites",
		"-o", outPath,
		url,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp %s: %w: %s", url, err, strings.TrimSpace(string(output)))
	}
	// yt-dlp exits zero when --max-filesize makes it skip the download, so a
	// missing output file also counts as failure.
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("yt-dlp %s produced no output file", url)
	}
	return outPath, nil
}
