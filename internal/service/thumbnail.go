package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const thumbTimeout = time.Minute

// Thumbnailer scales images down with ffmpeg through the job queue
type Thumbnailer struct {
	queue *JobQueue
	width int
}

func NewThumbnailer(q *JobQueue, width int) *Thumbnailer {
	return &Thumbnailer{
		queue: q,
		width: width,
	}
}

// Make writes a thumbnail of src to dst and waits for it. dst keeps the
// source's file name, so its format follows the extension.
func (t *Thumbnailer) Make(ctx context.Context, username, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory, %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, thumbTimeout)
	defer cancel()

	done := make(chan error, 1)

	zap.L().Debug("Creating thumbnail", zap.String("src", src), zap.String("dst", dst))

	err := t.queue.Enqueue(&FFmpegJob{
		Username: username,
		Args: []string{
			"-loglevel", "error",
			"-y",
			"-i", src,
			"-frames:v", "1",
			"-vf", "scale=" + strconv.Itoa(t.width) + ":-1",
			dst,
		},
		Done: done,
		Ctx:  ctx,
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
