package pdfmerge

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/akozyrev/docintake/internal/compose"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makePDF(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	c := compose.New(path, "")
	c.WriteParagraph(text, compose.StyleNormal)
	if _, err := c.Finalize(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMergeTwoDocuments(t *testing.T) {
	dir := t.TempDir()
	primary := makePDF(t, dir, "primary.pdf", "primary")
	att := makePDF(t, dir, "att.pdf", "attachment")
	out := filepath.Join(dir, "merged.pdf")

	m := New(discard())
	if err := m.Merge(primary, []string{att}, out); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(out); err != nil {
		t.Fatalf("merged file missing: %v", err)
	}
	// The primary must never be mutated in place.
	if _, err := os.Stat(primary); err != nil {
		t.Fatalf("primary was removed by Merge: %v", err)
	}
}

func TestMergeSkipsBadInputs(t *testing.T) {
	dir := t.TempDir()
	primary := makePDF(t, dir, "primary.pdf", "primary")
	junk := filepath.Join(dir, "junk.pdf")
	os.WriteFile(junk, []byte("not a pdf at all"), 0o644)
	missing := filepath.Join(dir, "nope.pdf")
	out := filepath.Join(dir, "merged.pdf")

	m := New(discard())
	if err := m.Merge(primary, []string{junk, missing}, out); err != nil {
		t.Fatalf("merge should survive bad inputs: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("merged file missing: %v", err)
	}
}

func TestMergeNothingSurvives(t *testing.T) {
	dir := t.TempDir()
	m := New(discard())
	err := m.Merge(filepath.Join(dir, "absent.pdf"), nil, filepath.Join(dir, "out.pdf"))
	if !errors.Is(err, ErrNothingMerged) {
		t.Errorf("err = %v, want ErrNothingMerged", err)
	}
}

func TestDisabledMergerNeverTouchesDisk(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.pdf")

	var m Merger = Disabled{}
	if m.Available() {
		t.Error("Disabled reports available")
	}
	if err := m.Merge("a.pdf", []string{"b.pdf"}, out); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
	if _, err := os.Stat(out); err == nil {
		t.Error("Disabled merger wrote output")
	}
}

func TestFinalizeNoAttachmentsKeepsPrimary(t *testing.T) {
	dir := t.TempDir()
	primary := makePDF(t, dir, "primary.pdf", "primary")

	final, merged := Finalize(New(discard()), primary, nil, filepath.Join(dir, "m.pdf"), discard())
	if merged {
		t.Error("merged = true with no attachments")
	}
	if final != primary {
		t.Errorf("final = %q, want primary path unchanged", final)
	}
}

func TestFinalizeFallbackOnFailure(t *testing.T) {
	dir := t.TempDir()
	primary := makePDF(t, dir, "primary.pdf", "primary")

	final, merged := Finalize(Disabled{}, primary, []string{"x.pdf"}, filepath.Join(dir, "m.pdf"), discard())
	if merged {
		t.Error("merged = true with disabled backend")
	}
	if final != primary {
		t.Errorf("final = %q, want primary", final)
	}
	if _, err := os.Stat(primary); err != nil {
		t.Errorf("primary removed on failed merge: %v", err)
	}
}

func TestFinalizeSuccessRemovesPrimary(t *testing.T) {
	dir := t.TempDir()
	primary := makePDF(t, dir, "primary.pdf", "primary")
	att := makePDF(t, dir, "att.pdf", "attachment")
	out := filepath.Join(dir, "merged.pdf")

	final, merged := Finalize(New(discard()), primary, []string{att}, out, discard())
	if !merged {
		t.Fatal("expected merge to succeed")
	}
	if final != out {
		t.Errorf("final = %q, want %q", final, out)
	}
	if _, err := os.Stat(primary); !os.IsNotExist(err) {
		t.Error("superseded primary still on disk")
	}
}
