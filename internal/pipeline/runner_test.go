package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/bookdepot/coverdl/internal/imaging"
	"github.com/bookdepot/coverdl/internal/table"
)

type stubFetcher struct {
	payloads map[string][]byte
	calls    []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	payload, ok := f.payloads[url]
	if !ok {
		return nil, fmt.Errorf("fetch failed after 3 attempts: unexpected status=503")
	}
	return payload, nil
}

type passthroughNormalizer struct{}

func (passthroughNormalizer) Flatten(input []byte) ([]byte, bool, error) {
	return input, false, nil
}

func (passthroughNormalizer) ConvertWebP(input []byte, _ bool) ([]byte, error) {
	return input, nil
}

func newTestRunner(fetcher Fetcher, opts Options) *Runner {
	r := NewRunner(fetcher, passthroughNormalizer{}, opts)
	r.Sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func encodedJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 40, B: 40, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodedPNG(t *testing.T, alpha uint8) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 90, B: 10, A: alpha})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestRunMixedRows(t *testing.T) {
	normalizer, err := imaging.New()
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	fetcher := &stubFetcher{payloads: map[string][]byte{
		"https://cdn.example.com/123.jpg":  encodedJPEG(t),
		"https://cdn.example.com/456.webp": encodedPNG(t, 255),
	}}

	r := NewRunner(fetcher, normalizer, Options{ConvertWebP: true})
	r.Sleep = func(context.Context, time.Duration) error { return nil }

	result, err := r.Run(context.Background(), []table.Row{
		{Identifier: "123", Link: "https://cdn.example.com/123.jpg"},
		{Identifier: "999", Link: ""},
		{Identifier: "456.0", Link: "https://cdn.example.com/456.webp"},
	})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if result.Stats.Succeeded != 2 {
		t.Fatalf("succeeded = %d, want 2", result.Stats.Succeeded)
	}
	if result.Stats.SkippedEmpty != 1 {
		t.Fatalf("skipped_empty = %d, want 1", result.Stats.SkippedEmpty)
	}
	if result.Stats.Converted != 1 {
		t.Fatalf("converted = %d, want 1", result.Stats.Converted)
	}

	names := result.Bundle.Names()
	if len(names) != 2 || names[0] != "123.jpg" || names[1] != "456.png" {
		t.Fatalf("unexpected bundle entries: %v", names)
	}
}

func TestRunContinuesPastFetchFailures(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string][]byte{
		"https://cdn.example.com/ok.jpg": []byte("payload"),
	}}

	r := newTestRunner(fetcher, Options{})
	result, err := r.Run(context.Background(), []table.Row{
		{Identifier: "111", Link: "https://cdn.example.com/broken.jpg"},
		{Identifier: "222", Link: "https://cdn.example.com/ok.jpg"},
	})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if result.Stats.Failed != 1 {
		t.Fatalf("failed = %d, want 1", result.Stats.Failed)
	}
	if result.Stats.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1", result.Stats.Succeeded)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error record, got %d", len(result.Errors))
	}
	if result.Errors[0].Identifier != "111" {
		t.Fatalf("error record identifier = %q, want 111", result.Errors[0].Identifier)
	}
}

func TestRunAllowlistFiltersAndReportsMissing(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string][]byte{
		"https://cdn.example.com/123.jpg": []byte("payload"),
	}}

	r := newTestRunner(fetcher, Options{
		Allowlist: map[string]struct{}{"123": {}, "777": {}},
	})

	result, err := r.Run(context.Background(), []table.Row{
		{Identifier: "123", Link: "https://cdn.example.com/123.jpg"},
		{Identifier: "456", Link: "https://cdn.example.com/456.jpg"},
	})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if result.Stats.FilteredOut != 1 {
		t.Fatalf("filtered_out = %d, want 1", result.Stats.FilteredOut)
	}
	if result.Stats.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1", result.Stats.Succeeded)
	}
	if len(result.Missing) != 1 || result.Missing[0] != "777" {
		t.Fatalf("missing = %v, want [777]", result.Missing)
	}

	for _, url := range fetcher.calls {
		if url == "https://cdn.example.com/456.jpg" {
			t.Fatal("filtered-out row was fetched")
		}
	}
}

func TestRunDuplicatePolicy(t *testing.T) {
	rows := []table.Row{
		{Identifier: "123", Link: "https://cdn.example.com/a.jpg"},
		{Identifier: "123", Link: "https://cdn.example.com/b.jpg"},
	}
	payloads := map[string][]byte{
		"https://cdn.example.com/a.jpg": []byte("first"),
		"https://cdn.example.com/b.jpg": []byte("second"),
	}

	r := newTestRunner(&stubFetcher{payloads: payloads}, Options{})
	result, err := r.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if result.Stats.Succeeded != 1 || result.Stats.SkippedExisting != 1 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	if result.Bundle.Len() != 1 {
		t.Fatalf("expected 1 bundle entry, got %d", result.Bundle.Len())
	}

	r = newTestRunner(&stubFetcher{payloads: payloads}, Options{Overwrite: true})
	result, err = r.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if result.Stats.Succeeded != 2 || result.Stats.SkippedExisting != 0 {
		t.Fatalf("unexpected stats with overwrite: %+v", result.Stats)
	}
	if result.Bundle.Len() != 1 {
		t.Fatalf("expected 1 bundle entry, got %d", result.Bundle.Len())
	}
}

func TestRunSkipsDocumentLinks(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string][]byte{}}

	r := newTestRunner(fetcher, Options{})
	result, err := r.Run(context.Background(), []table.Row{
		{Identifier: "123", Link: "https://cdn.example.com/catalog/123.pdf"},
	})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if result.Stats.UnsupportedFormat != 1 {
		t.Fatalf("unsupported_format = %d, want 1", result.Stats.UnsupportedFormat)
	}
	if len(fetcher.calls) != 0 {
		t.Fatalf("document link was fetched: %v", fetcher.calls)
	}
}

func TestRunRecordsNormalizeFailures(t *testing.T) {
	normalizer, err := imaging.New()
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	fetcher := &stubFetcher{payloads: map[string][]byte{
		"https://cdn.example.com/123.jpg": []byte("<html>not an image</html>"),
	}}

	r := NewRunner(fetcher, normalizer, Options{HandleTransparency: true})
	r.Sleep = func(context.Context, time.Duration) error { return nil }

	result, err := r.Run(context.Background(), []table.Row{
		{Identifier: "123", Link: "https://cdn.example.com/123.jpg"},
	})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if result.Stats.Failed != 1 {
		t.Fatalf("failed = %d, want 1", result.Stats.Failed)
	}
	if len(result.Errors) != 1 || result.Errors[0].Identifier != "123" {
		t.Fatalf("unexpected error records: %+v", result.Errors)
	}
	if result.Bundle.Len() != 0 {
		t.Fatal("failed row must not reach the bundle")
	}
}

func TestRunThrottlesOnlyFetchedRows(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string][]byte{
		"https://cdn.example.com/ok.jpg": []byte("payload"),
	}}

	var sleeps int
	r := NewRunner(fetcher, passthroughNormalizer{}, Options{Delay: time.Millisecond})
	r.Sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	_, err := r.Run(context.Background(), []table.Row{
		{Identifier: "", Link: ""},
		{Identifier: "123", Link: "https://cdn.example.com/catalog.pdf"},
		{Identifier: "456", Link: "https://cdn.example.com/ok.jpg"},
		{Identifier: "789", Link: "https://cdn.example.com/broken.jpg"},
	})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if sleeps != 2 {
		t.Fatalf("expected 2 throttle pauses, got %d", sleeps)
	}
}

func TestRunRequiresCollaborators(t *testing.T) {
	if _, err := (&Runner{}).Run(context.Background(), nil); err == nil {
		t.Fatal("expected error without fetcher")
	}
	if _, err := (&Runner{Fetcher: &stubFetcher{}}).Run(context.Background(), nil); err == nil {
		t.Fatal("expected error without normalizer")
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(&stubFetcher{}, Options{})
	if _, err := r.Run(ctx, []table.Row{{Identifier: "1", Link: "https://x/a.jpg"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
