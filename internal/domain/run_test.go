package domain

import (
	"testing"
	"time"
)

func TestCreateRunRequestValidate(t *testing.T) {
	valid := CreateRunRequest{
		IdentifierColumn: "EAN",
		LinkColumn:       "Link",
		DelaySeconds:     1.5,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	missingColumns := CreateRunRequest{LinkColumn: "Link"}
	if err := missingColumns.Validate(); err == nil {
		t.Fatal("expected validation error for missing identifier column")
	}

	negativeDelay := CreateRunRequest{
		IdentifierColumn: "EAN",
		LinkColumn:       "Link",
		DelaySeconds:     -1,
	}
	if err := negativeDelay.Validate(); err == nil {
		t.Fatal("expected validation error for negative delay")
	}

	badExtension := CreateRunRequest{
		IdentifierColumn: "EAN",
		LinkColumn:       "Link",
		DefaultExtension: "jpg",
	}
	if err := badExtension.Validate(); err == nil {
		t.Fatal("expected validation error for extension without dot")
	}
}

func TestPipelineOptions(t *testing.T) {
	req := CreateRunRequest{
		IdentifierColumn: "EAN",
		LinkColumn:       "Link",
		ConvertWebP:      true,
		DelaySeconds:     0.5,
		Allowlist:        []string{"123.0", " 456 "},
	}

	opts := req.PipelineOptions()
	if !opts.ConvertWebP {
		t.Fatal("expected convert_webp to carry over")
	}
	if opts.Delay != 500*time.Millisecond {
		t.Fatalf("delay = %v, want 500ms", opts.Delay)
	}
	if len(opts.Allowlist) != 2 {
		t.Fatalf("allowlist size = %d, want 2", len(opts.Allowlist))
	}
	if _, ok := opts.Allowlist["123"]; !ok {
		t.Fatal("expected normalized allowlist entry 123")
	}
}
