package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bookdepot/coverdl/internal/format"
	"github.com/bookdepot/coverdl/internal/ident"
	"github.com/bookdepot/coverdl/internal/pipeline"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// CreateRunRequest carries the operator-facing options for one download run.
type CreateRunRequest struct {
	IdentifierColumn   string   `json:"identifier_column"`
	LinkColumn         string   `json:"link_column"`
	ConvertWebP        bool     `json:"convert_webp"`
	HandleTransparency bool     `json:"handle_transparency"`
	Overwrite          bool     `json:"overwrite"`
	DelaySeconds       float64  `json:"delay_seconds"`
	DefaultExtension   string   `json:"default_extension,omitempty"`
	Allowlist          []string `json:"allowlist,omitempty"`
}

type Run struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	SourceName string           `json:"source_name"`
	Request    CreateRunRequest `json:"request"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Report is the final per-run summary handed back to the operator.
type Report struct {
	Stats          pipeline.Stats         `json:"stats"`
	Errors         []pipeline.ErrorRecord `json:"errors,omitempty"`
	Missing        []string               `json:"missing,omitempty"`
	ArchiveEntries []string               `json:"archive_entries,omitempty"`
	ArchiveBytes   int                    `json:"archive_bytes"`
	CompletedAt    time.Time              `json:"completed_at"`
}

func (r CreateRunRequest) Validate() error {
	if strings.TrimSpace(r.IdentifierColumn) == "" {
		return errors.New("identifier_column is required")
	}
	if strings.TrimSpace(r.LinkColumn) == "" {
		return errors.New("link_column is required")
	}
	if r.DelaySeconds < 0 {
		return errors.New("delay_seconds must not be negative")
	}
	if ext := strings.TrimSpace(r.DefaultExtension); ext != "" && !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("default_extension must start with a dot: %q", r.DefaultExtension)
	}
	return nil
}

func (r CreateRunRequest) PipelineOptions() pipeline.Options {
	opts := pipeline.Options{
		ConvertWebP:        r.ConvertWebP,
		HandleTransparency: r.HandleTransparency,
		Overwrite:          r.Overwrite,
		Delay:              time.Duration(r.DelaySeconds * float64(time.Second)),
		DefaultExtension:   strings.TrimSpace(r.DefaultExtension),
		AllowedExtensions:  format.AllowedExtensions(),
	}

	if len(r.Allowlist) > 0 {
		opts.Allowlist = ident.ParseList(strings.Join(r.Allowlist, "\n"))
	}
	return opts
}
