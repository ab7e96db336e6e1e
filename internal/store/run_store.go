package store

import (
	"context"
	"errors"

	"github.com/bookdepot/coverdl/internal/domain"
)

var ErrRunNotFound = errors.New("run not found")

type RunStore interface {
	Create(ctx context.Context, run domain.Run) error
	Get(ctx context.Context, id string) (domain.Run, bool, error)
	UpdateStatus(ctx context.Context, id, status, runErr string) (domain.Run, error)
	SetReport(ctx context.Context, id string, report domain.Report) error
	GetReport(ctx context.Context, id string) (domain.Report, bool, error)
	List(ctx context.Context) ([]domain.Run, error)
}
