package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/secondopinion/secondopinion/internal/platform/auth"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("not allowed to access this record")
)

// AccessChecker reports whether a doctor may view a record because it is part
// of a case the doctor can see.
type AccessChecker interface {
	DoctorMayViewRecord(ctx context.Context, recordID, doctorID uuid.UUID) (bool, error)
}

// UploadInput carries a record upload.
type UploadInput struct {
	Title       string
	Category    string
	ReportDate  string
	FileName    string
	ContentType string
	FileData    []byte
}

// Service implements record upload, listing, and payload access.
type Service struct {
	repo        Repository
	access      AccessChecker
	maxFileSize int64
	logger      zerolog.Logger
}

func NewService(repo Repository, access AccessChecker, maxFileSize int64, logger zerolog.Logger) *Service {
	return &Service{repo: repo, access: access, maxFileSize: maxFileSize, logger: logger}
}

// Upload validates and stores a new record for the owner.
func (s *Service) Upload(ctx context.Context, ownerID uuid.UUID, in UploadInput) (*Record, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(in.FileData) == 0 {
		return nil, fmt.Errorf("%w: file is required", ErrValidation)
	}
	if int64(len(in.FileData)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: file exceeds maximum size of %d bytes", ErrValidation, s.maxFileSize)
	}
	if !AllowedContentTypes[in.ContentType] {
		return nil, fmt.Errorf("%w: content type %q is not allowed", ErrValidation, in.ContentType)
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       in.Title,
		Category:    strings.TrimSpace(in.Category),
		ReportDate:  strings.TrimSpace(in.ReportDate),
		FileName:    in.FileName,
		ContentType: in.ContentType,
		FileSize:    int64(len(in.FileData)),
		FileData:    in.FileData,
		Status:      StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("record_id", rec.ID.String()).
		Str("owner_id", ownerID.String()).
		Int64("size", rec.FileSize).
		Msg("record uploaded")
	return rec, nil
}

// List returns the owner's records, metadata only.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Dashboard returns the owner's recent records plus status counts.
func (s *Service) Dashboard(ctx context.Context, ownerID uuid.UUID) ([]*Record, *Stats, error) {
	recs, _, err := s.repo.ListByOwner(ctx, ownerID, 10, 0)
	if err != nil {
		return nil, nil, err
	}
	stats, err := s.repo.StatsByOwner(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	return recs, stats, nil
}

// Payload loads a record with its file data, enforcing access: the owner and
// admins always pass; a doctor passes when the record is part of a case the
// doctor can see.
func (s *Service) Payload(ctx context.Context, recordID, callerID uuid.UUID, role string) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if rec.OwnerID == callerID || role == auth.RoleAdmin {
		return rec, nil
	}
	if role == auth.RoleDoctor {
		ok, err := s.access.DoctorMayViewRecord(ctx, recordID, callerID)
		if err != nil {
			return nil, fmt.Errorf("check doctor access: %w", err)
		}
		if ok {
			return rec, nil
		}
	}
	return nil, ErrForbidden
}
