// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func allIds() []Id {
	return []Id{
		BuildFileNotFoundId,
		SpecLoadFailedId,
		InterpreterNotFoundId,
		ConfigLoadFailedId,
		ArchNotSupportedId,
		FetchFailedId,
		VerificationFailedId,
		UnpackFailedId,
		StageFailedId,
		PermissionDeniedId,
	}
}

func TestIssuesMapCompleteness(t *testing.T) {
	t.Parallel()

	for _, id := range allIds() {
		is := Get(id)
		if is == nil {
			t.Errorf("Get(%d) = nil", id)
			continue
		}
		if is.Id() != id {
			t.Errorf("Get(%d).Id() = %d", id, is.Id())
		}
		if is.MarkdownMsg() == "" {
			t.Errorf("issue %d has no message", id)
		}
		if len(is.DocLinks()) == 0 {
			t.Errorf("issue %d has no doc links", id)
		}
	}
	if got := len(Values()); got != len(allIds()) {
		t.Errorf("len(Values()) = %d, want %d", got, len(allIds()))
	}
}

func TestValuesOrdered(t *testing.T) {
	t.Parallel()

	vals := Values()
	for i := 1; i < len(vals); i++ {
		if vals[i-1].Id() >= vals[i].Id() {
			t.Fatalf("Values() not ordered at %d: %d >= %d", i, vals[i-1].Id(), vals[i].Id())
		}
	}
	if Get(0) != nil {
		t.Error("Get(0) != nil")
	}
}

func TestDocLinksAreCopies(t *testing.T) {
	t.Parallel()

	is := Get(VerificationFailedId)
	links := is.DocLinks()
	links[0] = "changed"
	if is.DocLinks()[0] == "changed" {
		t.Error("DocLinks() exposes internal slice")
	}
}

// Not parallel: swaps the package-level renderer.
func TestRenderAppendsLinks(t *testing.T) {
	orig := render
	t.Cleanup(func() { render = orig })

	var gotStyle string
	render = func(in, style string) (string, error) {
		gotStyle = style
		return in, nil
	}

	out, err := Get(StageFailedId).Render("")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if gotStyle != "auto" {
		t.Errorf("style = %q, want auto", gotStyle)
	}
	if !strings.Contains(out, "# A build stage failed!") || !strings.Contains(out, "## See also") {
		t.Errorf("Render() = %q", out)
	}
	if !strings.Contains(out, "<https://man.archlinux.org/man/makepkg.8>") {
		t.Errorf("Render() lacks doc link: %q", out)
	}
}

func TestAllIssuesRenderWithGlamour(t *testing.T) {
	t.Parallel()

	for _, is := range Values() {
		out, err := is.Render("notty")
		if err != nil {
			t.Errorf("issue %d: Render() error = %v", is.Id(), err)
		}
		if strings.TrimSpace(out) == "" {
			t.Errorf("issue %d rendered empty", is.Id())
		}
	}
}
