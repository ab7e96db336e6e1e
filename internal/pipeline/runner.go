package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bookdepot/coverdl/internal/bundle"
	"github.com/bookdepot/coverdl/internal/format"
	"github.com/bookdepot/coverdl/internal/ident"
	"github.com/bookdepot/coverdl/internal/table"
)

type Outcome string

const (
	OutcomeEmpty             Outcome = "empty"
	OutcomeFilteredOut       Outcome = "filtered_out"
	OutcomeUnsupportedFormat Outcome = "unsupported_format"
	OutcomeFetchFailed       Outcome = "fetch_failed"
	OutcomeNormalizeFailed   Outcome = "normalize_failed"
	OutcomeDuplicateSkipped  Outcome = "duplicate_skipped"
	OutcomeAdded             Outcome = "added"
)

// reachedFetch reports whether a row got as far as a network round trip.
// Only those rows are throttled.
func (o Outcome) reachedFetch() bool {
	switch o {
	case OutcomeFetchFailed, OutcomeNormalizeFailed, OutcomeDuplicateSkipped, OutcomeAdded:
		return true
	default:
		return false
	}
}

type Stats struct {
	Succeeded         int `json:"succeeded"`
	Failed            int `json:"failed"`
	SkippedEmpty      int `json:"skipped_empty"`
	SkippedExisting   int `json:"skipped_existing"`
	Converted         int `json:"converted"`
	TransparencyFixed int `json:"transparency_fixed"`
	FilteredOut       int `json:"filtered_out"`
	UnsupportedFormat int `json:"unsupported_format"`
}

type ErrorRecord struct {
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
}

type RowResult struct {
	Identifier        string
	Filename          string
	Outcome           Outcome
	Converted         bool
	TransparencyFixed bool
	Err               error
}

type Result struct {
	Stats   Stats
	Errors  []ErrorRecord
	Missing []string
	Bundle  *bundle.Builder
}

type Options struct {
	ConvertWebP        bool
	HandleTransparency bool
	Overwrite          bool
	Delay              time.Duration
	AllowedExtensions  map[string]struct{}
	DefaultExtension   string
	Allowlist          map[string]struct{}
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Normalizer interface {
	Flatten(input []byte) ([]byte, bool, error)
	ConvertWebP(input []byte, flatten bool) ([]byte, error)
}

type SleepFunc func(ctx context.Context, d time.Duration) error

// Runner processes table rows strictly in order: one row's full
// fetch-normalize-store cycle completes before the next begins. Sleep and
// OnRow are injectable; both default to sensible no-cost behavior.
type Runner struct {
	Fetcher    Fetcher
	Normalizer Normalizer
	Options    Options
	Sleep      SleepFunc
	OnRow      func(RowResult)
}

func NewRunner(fetcher Fetcher, normalizer Normalizer, opts Options) *Runner {
	return &Runner{
		Fetcher:    fetcher,
		Normalizer: normalizer,
		Options:    opts,
	}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (r *Runner) Run(ctx context.Context, rows []table.Row) (Result, error) {
	if r.Fetcher == nil {
		return Result{}, errors.New("fetcher is required")
	}
	if r.Normalizer == nil {
		return Result{}, errors.New("normalizer is required")
	}

	sleep := r.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}

	resolver := format.Resolver{
		Allowed: r.Options.AllowedExtensions,
		Default: r.Options.DefaultExtension,
	}

	result := Result{Bundle: bundle.NewBuilder(r.Options.Overwrite)}
	found := make(map[string]struct{})

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rowResult := r.processRow(ctx, row, resolver, result.Bundle, found)
		result.fold(rowResult)
		if r.OnRow != nil {
			r.OnRow(rowResult)
		}

		if rowResult.Outcome.reachedFetch() && r.Options.Delay > 0 {
			if err := sleep(ctx, r.Options.Delay); err != nil {
				return result, err
			}
		}
	}

	result.Missing = missingIdentifiers(r.Options.Allowlist, found)
	return result, nil
}

func (r *Runner) processRow(ctx context.Context, row table.Row, resolver format.Resolver, b *bundle.Builder, found map[string]struct{}) RowResult {
	id, ok := ident.Normalize(row.Identifier)
	link := strings.TrimSpace(row.Link)
	if !ok || link == "" {
		return RowResult{Identifier: id, Outcome: OutcomeEmpty}
	}

	if r.Options.Allowlist != nil {
		if _, wanted := r.Options.Allowlist[id]; !wanted {
			return RowResult{Identifier: id, Outcome: OutcomeFilteredOut}
		}
	}
	found[id] = struct{}{}

	resolution := resolver.Resolve(link)
	if resolution.Document {
		return RowResult{Identifier: id, Outcome: OutcomeUnsupportedFormat}
	}

	ext := resolution.Extension
	originalExt := ext

	data, err := r.Fetcher.Fetch(ctx, link)
	if err != nil {
		return RowResult{Identifier: id, Outcome: OutcomeFetchFailed, Err: err}
	}

	out := RowResult{Identifier: id}

	if r.Options.HandleTransparency && originalExt != ".webp" {
		flattened, changed, err := r.Normalizer.Flatten(data)
		if err != nil {
			out.Outcome = OutcomeNormalizeFailed
			out.Err = err
			return out
		}
		if changed {
			data = flattened
			out.TransparencyFixed = true
		}
	}

	if r.Options.ConvertWebP && originalExt == ".webp" {
		converted, err := r.Normalizer.ConvertWebP(data, r.Options.HandleTransparency)
		if err != nil {
			out.Outcome = OutcomeNormalizeFailed
			out.Err = err
			return out
		}
		data = converted
		ext = ".png"
		out.Converted = true
	}

	out.Filename = id + ext
	if b.Add(out.Filename, data) {
		out.Outcome = OutcomeAdded
	} else {
		out.Outcome = OutcomeDuplicateSkipped
	}
	return out
}

func (result *Result) fold(row RowResult) {
	switch row.Outcome {
	case OutcomeEmpty:
		result.Stats.SkippedEmpty++
	case OutcomeFilteredOut:
		result.Stats.FilteredOut++
	case OutcomeUnsupportedFormat:
		result.Stats.UnsupportedFormat++
	case OutcomeFetchFailed, OutcomeNormalizeFailed:
		result.Stats.Failed++
		result.Errors = append(result.Errors, ErrorRecord{
			Identifier: row.Identifier,
			Message:    row.Err.Error(),
		})
	case OutcomeDuplicateSkipped:
		result.Stats.SkippedExisting++
	case OutcomeAdded:
		result.Stats.Succeeded++
	}

	if row.Converted {
		result.Stats.Converted++
	}
	if row.TransparencyFixed {
		result.Stats.TransparencyFixed++
	}
}

func missingIdentifiers(allowlist, found map[string]struct{}) []string {
	if allowlist == nil {
		return nil
	}

	missing := make([]string, 0)
	for id := range allowlist {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}
