package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedMessagesRender(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, key := range []string{
		"operator.anchor.top_left",
		"operator.anchor.bottom_right",
		"operator.await_start",
		"operator.session.draw",
		"operator.session.desync",
	} {
		if !c.Has(key) {
			t.Errorf("missing key %s", key)
		}
	}
	got, err := c.Render("operator.session.win", map[string]any{"Ply": 7, "Moves": "0101020"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, "7") || !strings.Contains(got, "0101020") {
		t.Fatalf("rendered = %q", got)
	}
}

func TestMissingDataIsError(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("operator.session.win", map[string]any{}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if got := c.Text("operator.session.win", map[string]any{}, "fallback"); got != "fallback" {
		t.Fatalf("Text = %q", got)
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("operator:\n  await_start: \"press enter\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("operator.await_start", nil, ""); got != "press enter" {
		t.Fatalf("override not applied: %q", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte("operator:\n  await_start: \"again\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}

func TestNonStringLeafRejected(t *testing.T) {
	if _, err := parseYAMLToFlat([]byte("a:\n  b: 3\n")); err == nil {
		t.Fatalf("expected error for int leaf")
	}
}
