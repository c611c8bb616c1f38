package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/internal/observability"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
	"github.com/noah-isme/gema-quiz-api/pkg/cloudinary"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the MIME type is not permitted.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadNotFound indicates no stored upload matches the request.
	ErrUploadNotFound = errors.New("upload not found")
	// ErrStorageUnavailable indicates object storage is not configured.
	ErrStorageUnavailable = errors.New("object storage not configured")
)

var allowedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// ImageStorage abstracts the object store holding question images.
type ImageStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (cloudinary.Asset, error)
	Remove(ctx context.Context, publicID string) error
}

// UploadService validates and stores question images.
type UploadService interface {
	Upload(ctx context.Context, file *multipart.FileHeader, actor ActivityActor) (dto.UploadResponse, error)
	Remove(ctx context.Context, url string, actor ActivityActor) error
}

type uploadService struct {
	storage  ImageStorage
	repo     repository.UploadRepository
	activity ActivityRecorder
	logger   zerolog.Logger
	maxSize  int64
	tracer   trace.Tracer
	now      func() time.Time
}

// NewUploadService constructs an upload service. A nil storage disables uploads.
func NewUploadService(storage ImageStorage, repo repository.UploadRepository, maxSizeMB int, activity ActivityRecorder, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 5
	}
	return &uploadService{
		storage:  storage,
		repo:     repo,
		activity: activity,
		logger:   logger.With().Str("component", "upload_service").Logger(),
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		tracer:   otel.Tracer("github.com/noah-isme/gema-quiz-api/internal/service/upload"),
		now:      time.Now,
	}
}

func (s *uploadService) Upload(ctx context.Context, file *multipart.FileHeader, actor ActivityActor) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "upload.store")
	defer span.End()

	span.SetAttributes(attribute.Int64("upload.max_bytes", s.maxSize))
	if file != nil {
		span.SetAttributes(
			attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
			attribute.Int64("upload.request_size", file.Size),
		)
	}

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if s.storage == nil {
		span.SetStatus(codes.Error, "storage unavailable")
		return dto.UploadResponse{}, ErrStorageUnavailable
	}

	if file == nil {
		err := errors.New("file is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.UploadResponse{}, err
	}

	if file.Size > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadResponse{}, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.UploadResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.UploadResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadResponse{}, ErrUploadTooLarge
	}

	fileType := mimetype.Detect(buf.Bytes()).String()
	span.SetAttributes(attribute.String("upload.detected_mime", fileType))
	if !isAllowedImage(fileType) {
		observability.UploadRejected().WithLabelValues("type").Inc()
		span.RecordError(ErrUploadTypeNotAllowed)
		span.SetStatus(codes.Error, "type not allowed")
		return dto.UploadResponse{}, ErrUploadTypeNotAllowed
	}

	sum := sha256.Sum256(buf.Bytes())
	checksum := hex.EncodeToString(sum[:])
	existing, found, err := s.repo.FindByChecksum(ctx, checksum)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return dto.UploadResponse{}, err
	}
	if found {
		span.SetAttributes(attribute.Bool("upload.reused", true))
		span.SetStatus(codes.Ok, "reused")
		response := uploadResponse(existing)
		response.Reused = true
		return response, nil
	}

	sanitizedName := sanitizeFileName(file.Filename, s.now())
	span.SetAttributes(
		attribute.String("upload.sanitized_name", sanitizedName),
		attribute.Int64("upload.size_bytes", int64(buf.Len())),
	)

	asset, err := s.storage.Upload(ctx, sanitizedName, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.UploadResponse{}, err
	}

	record := models.UploadRecord{
		FileName:  sanitizedName,
		URL:       asset.URL,
		PublicID:  asset.PublicID,
		MimeType:  fileType,
		SizeBytes: int64(buf.Len()),
		Checksum:  checksum,
	}

	if err := s.repo.Create(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.UploadResponse{}, err
	}

	observability.UploadRequests().WithLabelValues(fileType).Inc()
	span.SetStatus(codes.Ok, "stored")
	recordActivity(ctx, s.activity, s.logger, actor, "upload.created", "upload", uintPtr(record.ID), map[string]interface{}{
		"public_id": record.PublicID,
	})

	return uploadResponse(record), nil
}

func uploadResponse(record models.UploadRecord) dto.UploadResponse {
	return dto.UploadResponse{
		URL:       record.URL,
		PublicID:  record.PublicID,
		SizeBytes: record.SizeBytes,
		MimeType:  record.MimeType,
		Checksum:  record.Checksum,
		FileName:  record.FileName,
	}
}

func (s *uploadService) Remove(ctx context.Context, url string, actor ActivityActor) error {
	if s.storage == nil {
		return ErrStorageUnavailable
	}

	record, err := s.repo.GetByURL(ctx, strings.TrimSpace(url))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUploadNotFound
		}
		return err
	}

	if err := s.storage.Remove(ctx, record.PublicID); err != nil {
		return fmt.Errorf("remove stored image: %w", err)
	}

	if err := s.repo.Delete(ctx, record.ID); err != nil {
		return err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "upload.deleted", "upload", uintPtr(record.ID), map[string]interface{}{
		"public_id": record.PublicID,
	})
	return nil
}

func sanitizeFileName(name string, at time.Time) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("image-%d", at.Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".img"
	}
	return base + ext
}

func isAllowedImage(m string) bool {
	_, ok := allowedImageTypes[strings.ToLower(strings.TrimSpace(m))]
	return ok
}
