package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	a "banana/storage-api/aws"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	minMultipartSize = 12 << 20
	mirrorTimeout    = 2 * time.Minute
)

// Mirror receives every file written to or removed from the data directory.
// Implementations must not block the request and never report errors to it.
type Mirror interface {
	Put(ctx context.Context, path string)
	Delete(ctx context.Context, path string)
	Wait()
}

// NopMirror is used when mirroring is disabled
type NopMirror struct{}

func (NopMirror) Put(context.Context, string)    {}
func (NopMirror) Delete(context.Context, string) {}
func (NopMirror) Wait()                          {}

// S3Mirror copies files to a bucket, keyed by their path relative to the
// users directory ("<username>/uploads/<file>")
type S3Mirror struct {
	s3   *a.S3Client
	root string
	wg   sync.WaitGroup
}

func NewS3Mirror(c *a.S3Client, usersDir string) *S3Mirror {
	return &S3Mirror{
		s3:   c,
		root: usersDir,
	}
}

func (m *S3Mirror) key(path string) (string, error) {
	absRoot, err := filepath.Abs(m.root)
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside of the users directory", path)
	}

	return filepath.ToSlash(rel), nil
}

func (m *S3Mirror) Put(ctx context.Context, path string) {
	key, err := m.key(path)
	if err != nil {
		zap.L().Error("Not mirroring file", zap.Error(err))
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
		defer cancel()

		if err := m.upload(ctx, path, key); err != nil {
			zap.L().Error("Failed to mirror file", zap.String("key", key), zap.Error(err))
			return
		}

		zap.L().Debug("File mirrored", zap.String("key", key))
	}()
}

func (m *S3Mirror) upload(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file, %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	if mime, err := mimetype.DetectReader(f); err == nil {
		contentType = mime.String()
	}

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        m.s3.Bucket,
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("private, max-age=31536000, immutable"),
	}

	if stat.Size() > minMultipartSize {
		uploader := manager.NewUploader(m.s3.C, func(u *manager.Uploader) {
			u.Concurrency = 5
			u.PartSize = 6 << 20
		})

		_, err = uploader.Upload(ctx, input)
		return err
	}

	_, err = m.s3.C.PutObject(ctx, input)
	return err
}

func (m *S3Mirror) Delete(ctx context.Context, path string) {
	key, err := m.key(path)
	if err != nil {
		zap.L().Error("Not deleting mirrored file", zap.Error(err))
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
		defer cancel()

		_, err := m.s3.C.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: m.s3.Bucket,
			Key:    aws.String(key),
		})
		if err != nil {
			zap.L().Error("Failed to delete mirrored file", zap.String("key", key), zap.Error(err))
		}
	}()
}

// Wait blocks until every pending mirror operation finished
func (m *S3Mirror) Wait() {
	m.wg.Wait()
}

// mirrorDeleteTree deletes every regular file below dir from the mirror
func mirrorDeleteTree(ctx context.Context, mirror Mirror, dir string) {
	filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			mirror.Delete(ctx, p)
		}
		return nil
	})
}
