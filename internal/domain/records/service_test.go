package records

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/secondopinion/secondopinion/internal/platform/auth"
)

const testMaxFileSize = 1 << 20

type mockRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*Record)}
}

func (m *mockRepo) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) GetMany(_ context.Context, ids []uuid.UUID) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Record
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Record
	for _, r := range m.records {
		if r.OwnerID == ownerID {
			cp := *r
			cp.FileData = nil
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) CountOwned(_ context.Context, ids []uuid.UUID, ownerID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if r, ok := m.records[id]; ok && r.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) SetStatus(_ context.Context, ids []uuid.UUID, status Status, submittedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			r.Status = status
			if submittedAt != nil {
				t := *submittedAt
				r.SubmittedAt = &t
			}
		}
	}
	return nil
}

func (m *mockRepo) StatsByOwner(_ context.Context, ownerID uuid.UUID) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &Stats{}
	for _, r := range m.records {
		if r.OwnerID != ownerID {
			continue
		}
		stats.Total++
		switch r.Status {
		case StatusUploaded:
			stats.Uploaded++
		case StatusUnderReview:
			stats.UnderReview++
		case StatusCompleted:
			stats.Completed++
		}
	}
	return stats, nil
}

type fakeAccess struct{ allow bool }

func (f fakeAccess) DoctorMayViewRecord(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return f.allow, nil
}

func newTestRecordService(allowDoctor bool) (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo, fakeAccess{allow: allowDoctor}, testMaxFileSize, zerolog.Nop())
	return svc, repo
}

func validUpload() UploadInput {
	return UploadInput{
		Title:       "Blood panel",
		Category:    "lab",
		ReportDate:  "2026-08-01",
		FileName:    "panel.pdf",
		ContentType: "application/pdf",
		FileData:    []byte("%PDF-1.4 test"),
	}
}

func TestService_Upload(t *testing.T) {
	svc, repo := newTestRecordService(false)
	ownerID := uuid.New()

	rec, err := svc.Upload(context.Background(), ownerID, validUpload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusUploaded {
		t.Errorf("expected UPLOADED, got %s", rec.Status)
	}
	if rec.FileSize != int64(len("%PDF-1.4 test")) {
		t.Errorf("unexpected file size %d", rec.FileSize)
	}

	stored, err := repo.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if !bytes.Equal(stored.FileData, []byte("%PDF-1.4 test")) {
		t.Error("payload not stored")
	}
}

func TestService_Upload_Validation(t *testing.T) {
	svc, _ := newTestRecordService(false)
	ownerID := uuid.New()

	tests := []struct {
		name   string
		mutate func(*UploadInput)
	}{
		{"missing title", func(in *UploadInput) { in.Title = "  " }},
		{"empty file", func(in *UploadInput) { in.FileData = nil }},
		{"oversized file", func(in *UploadInput) { in.FileData = make([]byte, testMaxFileSize+1) }},
		{"executable content type", func(in *UploadInput) { in.ContentType = "application/x-msdownload" }},
		{"text content type", func(in *UploadInput) { in.ContentType = "text/html" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := validUpload()
			tc.mutate(&in)
			if _, err := svc.Upload(context.Background(), ownerID, in); !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestService_Payload_Access(t *testing.T) {
	svc, _ := newTestRecordService(false)
	ownerID := uuid.New()
	rec, _ := svc.Upload(context.Background(), ownerID, validUpload())

	if _, err := svc.Payload(context.Background(), rec.ID, ownerID, auth.RolePatient); err != nil {
		t.Errorf("owner should read own record: %v", err)
	}
	if _, err := svc.Payload(context.Background(), rec.ID, uuid.New(), auth.RolePatient); !errors.Is(err, ErrForbidden) {
		t.Errorf("other patient should be rejected, got %v", err)
	}
	if _, err := svc.Payload(context.Background(), rec.ID, uuid.New(), auth.RoleDoctor); !errors.Is(err, ErrForbidden) {
		t.Errorf("doctor without case access should be rejected, got %v", err)
	}
	if _, err := svc.Payload(context.Background(), rec.ID, uuid.New(), auth.RoleAdmin); err != nil {
		t.Errorf("admin should read any record: %v", err)
	}
}

func TestService_Payload_DoctorWithCaseAccess(t *testing.T) {
	svc, _ := newTestRecordService(true)
	ownerID := uuid.New()
	rec, _ := svc.Upload(context.Background(), ownerID, validUpload())

	got, err := svc.Payload(context.Background(), rec.ID, uuid.New(), auth.RoleDoctor)
	if err != nil {
		t.Fatalf("doctor with case access should read record: %v", err)
	}
	if len(got.FileData) == 0 {
		t.Error("expected payload to be loaded")
	}
}

func TestService_Payload_NotFound(t *testing.T) {
	svc, _ := newTestRecordService(false)
	if _, err := svc.Payload(context.Background(), uuid.New(), uuid.New(), auth.RolePatient); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestService_Dashboard(t *testing.T) {
	svc, repo := newTestRecordService(false)
	ownerID := uuid.New()
	r1, _ := svc.Upload(context.Background(), ownerID, validUpload())
	svc.Upload(context.Background(), ownerID, validUpload())
	repo.SetStatus(context.Background(), []uuid.UUID{r1.ID}, StatusUnderReview, nil)

	recs, stats, err := svc.Dashboard(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 recent records, got %d", len(recs))
	}
	if stats.Total != 2 || stats.UnderReview != 1 || stats.Uploaded != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
