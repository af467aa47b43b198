package app

import (
	"context"

	"hydration/internal/domain"
)

// SampleWriter submits consumption samples to the health repository.
type SampleWriter struct {
	repo domain.HealthRepository
}

// NewSampleWriter creates a SampleWriter. A nil repo makes every Submit fail
// with ErrUnavailable.
func NewSampleWriter(repo domain.HealthRepository) *SampleWriter {
	return &SampleWriter{repo: repo}
}

// Submit saves s. Repository errors are returned verbatim inside a
// *domain.WriteError.
func (w *SampleWriter) Submit(ctx context.Context, s domain.Sample) error {
	if w.repo == nil {
		return &domain.WriteError{Err: domain.ErrUnavailable}
	}
	if err := w.repo.Save(ctx, s); err != nil {
		return &domain.WriteError{Err: err}
	}
	return nil
}
