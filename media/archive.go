package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"pkuhole/models"
)

// ImageFetcher downloads the image of a topic.
type ImageFetcher interface {
	FetchImage(ctx context.Context, topic models.Topic) ([]byte, error)
}

// Archived describes where a topic's image was stored. ThumbPath is empty
// when no thumbnail could be made.
type Archived struct {
	PID       int64  `json:"pid"`
	ImagePath string `json:"image_path"`
	ThumbPath string `json:"thumb_path,omitempty"`
	SHA256    string `json:"sha256"`
}

// Archiver copies topic images into a StorageService.
type Archiver struct {
	fetcher ImageFetcher
	storage models.StorageService
	logger  *slog.Logger
}

func NewArchiver(fetcher ImageFetcher, storage models.StorageService, logger *slog.Logger) *Archiver {
	return &Archiver{fetcher: fetcher, storage: storage, logger: logger.With("component", "archiver")}
}

// Archive downloads the image of topic and stores it with a thumbnail.
func (a *Archiver) Archive(ctx context.Context, topic models.Topic) (Archived, error) {
	logger := a.logger.With("pid", topic.PID)

	data, err := a.fetcher.FetchImage(ctx, topic)
	if err != nil {
		return Archived{}, fmt.Errorf("could not fetch image of topic %d: %w", topic.PID, err)
	}
	contentType, ext, err := detect(data)
	if err != nil {
		return Archived{}, err
	}

	hash := sha256.Sum256(data)
	hashStr := hex.EncodeToString(hash[:])
	base := fmt.Sprintf("%d_%s", topic.PID, hashStr[:12])

	imagePath, err := a.storage.SaveFile(ctx, base+"."+ext, data, contentType)
	if err != nil {
		return Archived{}, fmt.Errorf("could not store image: %w", err)
	}
	result := Archived{PID: topic.PID, ImagePath: imagePath, SHA256: hashStr}

	// An image that does not decode is kept without a thumbnail.
	thumb, err := Thumbnail(data)
	if err != nil {
		logger.Error("Failed to create thumbnail", "error", err)
		return result, nil
	}
	thumbPath, err := a.storage.SaveFile(ctx, base+"_thumb.jpeg", thumb, "image/jpeg")
	if err != nil {
		if derr := a.storage.DeleteFile(ctx, imagePath); derr != nil {
			logger.Error("Failed to remove image after thumbnail error", "image", imagePath, "error", derr)
		}
		return Archived{}, fmt.Errorf("could not store thumbnail: %w", err)
	}
	result.ThumbPath = thumbPath
	logger.Info("Archived topic image", "image", imagePath, "thumb", thumbPath, "bytes", len(data))
	return result, nil
}

// Remove deletes archived files by the locations Archive returned. Every
// location is attempted; the errors are joined.
func (a *Archiver) Remove(ctx context.Context, locations ...string) error {
	var errs []error
	for _, loc := range locations {
		if err := a.storage.DeleteFile(ctx, loc); err != nil {
			errs = append(errs, fmt.Errorf("could not remove %s: %w", loc, err))
			continue
		}
		a.logger.Info("Removed archived file", "location", loc)
	}
	return errors.Join(errs...)
}
