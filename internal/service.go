package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/DrGermanius/buyback/internal/ingest"
	"github.com/DrGermanius/buyback/internal/model"
)

type IService interface {
	ConvertFile(context.Context, string, ingest.Mode) (ingest.Result, error)
	GetOrders(context.Context, model.OrderFilter) ([]model.Order, error)
	GetOrderByID(context.Context, string) (model.Order, error)
	GetStatusCounts(context.Context) ([]model.StatusCount, error)
	ListUploads(context.Context) (model.UploadsOutput, error)
	UploadPath(string) (string, error)
	DeleteUpload(context.Context, string) error
}

// Submitter runs a conversion through the ingestion queue and waits for it.
type Submitter interface {
	Submit(ctx context.Context, filename string, mode ingest.Mode) (ingest.Result, error)
}

type Service struct {
	Repository IRepository
	queue      Submitter
	meta       ingest.MetadataStore
	uploadsDir string
	logger     *zap.SugaredLogger
}

func NewService(repository IRepository, queue Submitter, meta ingest.MetadataStore, uploadsDir string, logger *zap.SugaredLogger) *Service {
	return &Service{
		Repository: repository,
		queue:      queue,
		meta:       meta,
		uploadsDir: uploadsDir,
		logger:     logger,
	}
}

func (s Service) ConvertFile(ctx context.Context, filename string, mode ingest.Mode) (ingest.Result, error) {
	if mode == "" {
		mode = ingest.ModeUpsert
	}
	return s.queue.Submit(ctx, filename, mode)
}

func (s Service) GetOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidFilter)
	}

	orders, err := s.Repository.GetOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrNoRecords
	}
	return orders, nil
}

func (s Service) GetOrderByID(ctx context.Context, orderID string) (model.Order, error) {
	return s.Repository.GetOrderByID(ctx, orderID)
}

func (s Service) GetStatusCounts(ctx context.Context) ([]model.StatusCount, error) {
	return s.Repository.GetStatusCounts(ctx)
}

// ListUploads lists the files in the uploads directory together with the
// first-seen timestamps recorded by the queue.
func (s Service) ListUploads(_ context.Context) (model.UploadsOutput, error) {
	out := model.UploadsOutput{Files: []string{}, Timestamps: map[string]string{}}

	entries, err := os.ReadDir(s.uploadsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, err
	}

	for _, e := range entries {
		if e.IsDir() || e.Name() == ".DS_Store" || e.Name() == ".gitkeep" {
			continue
		}
		out.Files = append(out.Files, e.Name())
	}
	sort.Strings(out.Files)

	seen, err := s.meta.ReadAll()
	if err != nil {
		return out, err
	}
	for _, name := range out.Files {
		if ts, ok := seen[name]; ok {
			out.Timestamps[name] = ts
		}
	}
	return out, nil
}

// UploadPath resolves where a manually uploaded file is saved. Only formats
// the converter understands are accepted.
func (s Service) UploadPath(filename string) (string, error) {
	name, err := ingest.CleanFilename(filename)
	if err != nil {
		return "", err
	}
	if !ingest.SupportedExt(name) {
		return "", fmt.Errorf("%w: %s", ingest.ErrUnsupportedFormat, name)
	}
	if err = os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(s.uploadsDir, name), nil
}

func (s Service) DeleteUpload(_ context.Context, filename string) error {
	name, err := ingest.CleanFilename(filename)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(s.uploadsDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoRecords
	}
	if err != nil {
		return err
	}

	if err = s.meta.Delete(name); err != nil {
		s.logger.Errorw("Failed to delete metadata", "file", name, "error", err)
	}
	s.logger.Infow("Upload deleted", "file", name)
	return nil
}
