package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/nukevideo/nukevideo/internal/models"
)

// Storyboard layout constants. Thumbnails are sampled every interval and
// packed into sprite sheets referenced by a WebVTT cue file.
const (
	storyboardInterval   = 10  // seconds between thumbnails
	storyboardPerSprite  = 100 // thumbnails per sprite sheet
	storyboardTileCols   = 10
	storyboardThumbWidth = 160
	defaultAspectRatio   = 1.777
)

// GenerateStoryboard produces seek-preview sprite sheets and the WebVTT
// cue file that maps playback positions to sprite regions.
func (w *StreamWorker) GenerateStoryboard(ctx context.Context, item *models.MediaItem, sourcePath string) error {
	if item.Duration <= 0 {
		return fmt.Errorf("generating storyboard: item has no duration")
	}

	pattern := w.work.FilePath(item.WorkDirName(), "storyboard_%d.jpg")

	args := []string{
		"-discard", "nokey",
		"-lowres", "2",
		"-i", sourcePath,
		"-vf", fmt.Sprintf("fps=1/%d,scale=%d:-1,tile=%dx%d",
			storyboardInterval, storyboardThumbWidth, storyboardTileCols, storyboardPerSprite/storyboardTileCols),
		"-q:v", "3",
		"-start_number", "0",
		pattern,
	}

	if err := w.runner.Run(ctx, args, nil); err != nil {
		return fmt.Errorf("generating storyboard sprites: %w", err)
	}

	thumbCount := int(math.Ceil(item.Duration / storyboardInterval))
	spriteCount := (thumbCount + storyboardPerSprite - 1) / storyboardPerSprite

	for n := 0; n < spriteCount; n++ {
		local := w.work.FilePath(item.WorkDirName(), fmt.Sprintf("storyboard_%d.jpg", n))
		key := fmt.Sprintf("%s/storyboard_%d.jpg", item.ID, n)
		if _, err := w.store.PutFile(ctx, key, local, "image/jpeg"); err != nil {
			return fmt.Errorf("storing storyboard sprite: %w", err)
		}
	}

	vtt := buildStoryboardVTT(item, thumbCount)
	vttPath := w.work.FilePath(item.WorkDirName(), "storyboard.vtt")
	if err := os.WriteFile(vttPath, []byte(vtt), 0o644); err != nil {
		return fmt.Errorf("writing storyboard cue file: %w", err)
	}

	key := fmt.Sprintf("%s/storyboard.vtt", item.ID)
	if _, err := w.store.PutFile(ctx, key, vttPath, "text/vtt"); err != nil {
		return fmt.Errorf("storing storyboard cue file: %w", err)
	}

	w.logger.Debug("storyboard generated",
		slog.String("media_item_id", item.ID.String()),
		slog.Int("thumbnails", thumbCount),
		slog.Int("sprites", spriteCount),
	)
	return nil
}

// buildStoryboardVTT renders the WebVTT cue sheet. Each cue points into a
// sprite sheet with a media fragment (#xywh) region.
func buildStoryboardVTT(item *models.MediaItem, thumbCount int) string {
	aspect := defaultAspectRatio
	if item.Width > 0 && item.Height > 0 {
		aspect = float64(item.Width) / float64(item.Height)
	}
	thumbHeight := int(math.Round(storyboardThumbWidth / aspect))

	var b strings.Builder
	b.WriteString("WEBVTT\n")

	for i := 0; i < thumbCount; i++ {
		start := float64(i * storyboardInterval)
		end := math.Min(float64((i+1)*storyboardInterval), item.Duration)

		sprite := i / storyboardPerSprite
		pos := i % storyboardPerSprite
		x := (pos % storyboardTileCols) * storyboardThumbWidth
		y := (pos / storyboardTileCols) * thumbHeight

		b.WriteString("\n")
		b.WriteString(vttTimestamp(start))
		b.WriteString(" --> ")
		b.WriteString(vttTimestamp(end))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("storyboard_%d.jpg#xywh=%d,%d,%d,%d\n",
			sprite, x, y, storyboardThumbWidth, thumbHeight))
	}

	return b.String()
}

// vttTimestamp formats seconds as a WebVTT HH:MM:SS.mmm timestamp.
func vttTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
