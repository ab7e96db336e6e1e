package report

import (
	"strings"
	"testing"

	"github.com/bookdepot/coverdl/internal/pipeline"
)

func TestRenderIncludesCountersAndErrors(t *testing.T) {
	out := Render(
		pipeline.Stats{Succeeded: 5, Failed: 1, Converted: 2},
		[]pipeline.ErrorRecord{{Identifier: "123", Message: "fetch failed after 3 attempts"}},
		[]string{"777"},
	)

	for _, want := range []string{
		"Downloaded",
		"WebP converted",
		"Errors (1):",
		"123: fetch failed after 3 attempts",
		"Not found in table (1):",
		"777",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderOmitsEmptySections(t *testing.T) {
	out := Render(pipeline.Stats{}, nil, nil)

	if strings.Contains(out, "Errors") {
		t.Fatal("expected no error section for clean run")
	}
	if strings.Contains(out, "Not found") {
		t.Fatal("expected no missing section without allow-list")
	}
}
