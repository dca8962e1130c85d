package main

import (
	"fmt"
	"image/png"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nfnt/resize"
)

const previewWidth = 320

// previewFrame serves a thumbnail of the newest deflickered frame of a job,
// so the web UI can show what the output looks like while the job runs.
func previewFrame(config *Config, c *gin.Context) {
	id := c.Param("id")
	deflickeredFolder := path.Join(config.ProcessFolder, fmt.Sprintf("job_%s", id), "deflickered_frames")

	latest, err := latestFrameFile(deflickeredFolder)
	if err != nil {
		c.String(http.StatusNotFound, "no deflickered frames yet")
		return
	}

	file, err := os.Open(path.Join(deflickeredFolder, latest))
	if err != nil {
		c.String(http.StatusNotFound, "no deflickered frames yet")
		return
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to decode frame")
		return
	}

	thumbnail := resize.Resize(previewWidth, 0, img, resize.Lanczos3)

	c.Status(http.StatusOK)
	c.Header("Content-Type", "image/png")
	if err := png.Encode(c.Writer, thumbnail); err != nil {
		c.String(http.StatusInternalServerError, "failed to encode preview")
	}
}

func latestFrameFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	frames := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".png") {
			frames = append(frames, entry.Name())
		}
	}

	if len(frames) == 0 {
		return "", os.ErrNotExist
	}

	// Zero padded names sort in frame order
	sort.Strings(frames)
	return frames[len(frames)-1], nil
}
