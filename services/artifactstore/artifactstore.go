// Package artifactstore optionally uploads a finished session's video,
// audio, and transcript to S3 once Leave has produced them. Upload is
// fire-and-forget best effort: a failed upload never fails Leave itself,
// since the files remain on local disk regardless.
package artifactstore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"go.uber.org/zap"

	"github.com/metacogma/meetcapture/logger"
)

// Store uploads capture artifacts to a single S3 bucket, keyed by date and
// meeting_id. A nil *Store (no bucket configured) makes every method a no-op.
type Store struct {
	uploader *s3manager.Uploader
	bucket   string
}

// New returns nil when bucket is empty, meaning artifact upload is disabled —
// callers must handle a nil *Store by skipping the upload step.
func New(bucket, region string) (*Store, error) {
	if bucket == "" {
		return nil, nil
	}
	if region == "" {
		region = "us-east-1"
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("artifactstore: creating aws session: %w", err)
	}
	return &Store{uploader: s3manager.NewUploader(sess), bucket: bucket}, nil
}

// Bundle is the set of local artifact paths produced by one completed
// session, as returned in a LeaveResult.
type Bundle struct {
	MeetingID  string
	SessionID  string
	VideoPath  string
	AudioPath  string
	Transcript string
}

// Upload pushes whichever of video/audio/transcript are non-empty under
// recordings/<meeting_id>/<date>/ as <session_id>_video.mp4,
// <session_id>_audio.mp3 and <session_id>_transcript.txt. Missing files (e.g. no
// video because zero frames were captured) are silently skipped.
func (s *Store) Upload(ctx context.Context, b Bundle) error {
	if s == nil {
		return nil
	}

	prefix := fmt.Sprintf("recordings/%s/%s/%s", b.MeetingID, time.Now().UTC().Format("2006-01-02"), b.SessionID)

	if b.VideoPath != "" {
		if err := s.uploadFile(ctx, prefix+"_video.mp4", b.VideoPath, "video/mp4"); err != nil {
			return err
		}
	}
	if b.AudioPath != "" {
		if err := s.uploadFile(ctx, prefix+"_audio.mp3", b.AudioPath, "audio/mpeg"); err != nil {
			return err
		}
	}
	if b.Transcript != "" {
		if err := s.uploadBytes(ctx, prefix+"_transcript.txt", []byte(b.Transcript), "text/plain; charset=utf-8"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) uploadFile(ctx context.Context, key, localPath, contentType string) error {
	if _, err := os.Stat(localPath); err != nil {
		return nil
	}
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("artifactstore: opening %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		logger.Error("artifact upload failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("artifactstore: uploading %s: %w", key, err)
	}
	logger.Info("artifact uploaded", zap.String("key", key))
	return nil
}

func (s *Store) uploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(string(data)),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		logger.Error("artifact upload failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("artifactstore: uploading %s: %w", key, err)
	}
	logger.Info("artifact uploaded", zap.String("key", key))
	return nil
}
