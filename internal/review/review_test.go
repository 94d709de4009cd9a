package review

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/akozyrev/docintake/internal/journal"
)

type scriptedPrompter struct {
	decision Decision
	retry    bool
}

func (p scriptedPrompter) Decide(Item, int) (Decision, error) { return p.decision, nil }

func (p scriptedPrompter) RetryAfterError(string, error) (bool, error) { return p.retry, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeTempPDF(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "draft.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 draft"), 0o644); err != nil {
		t.Fatalf("writing temp pdf: %v", err)
	}
	return path
}

func newTestEngine(t *testing.T, p Prompter, seq *journal.Sequencer, rec Recorder) (*Engine, string, string) {
	t.Helper()
	root := t.TempDir()
	registered := filepath.Join(root, "registered")
	downloaded := filepath.Join(root, "downloaded")
	for _, d := range []string{registered, downloaded} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if rec == nil {
		rec = func(context.Context, int, string, string) error { return nil }
	}
	return NewEngine(p, seq, registered, downloaded, rec, testLogger()), registered, downloaded
}

func TestReviewRegister(t *testing.T) {
	seq := journal.NewSequencer(11)
	var recorded struct {
		number int
		on     string
		path   string
	}
	rec := func(_ context.Context, n int, on, path string) error {
		recorded.number, recorded.on, recorded.path = n, on, path
		return nil
	}
	e, registered, _ := newTestEngine(t, scriptedPrompter{decision: DecisionRegister}, seq, rec)

	temp := writeTempPDF(t, t.TempDir())
	item := Item{
		TempPDF:       temp,
		Sender:        "ivanov@example.org",
		Subject:       "Договор",
		Received:      time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		ReceivedValid: true,
	}

	res := e.Review(context.Background(), item)
	if res.Outcome != OutcomeRegistered {
		t.Fatalf("Outcome = %s, want REGISTERED", res.Outcome)
	}
	if res.Number != 12 {
		t.Errorf("Number = %d, want 12", res.Number)
	}

	want := filepath.Join(registered, "вх.№ 12 от 05.03.2024.pdf")
	if res.FinalPath != want {
		t.Errorf("FinalPath = %q, want %q", res.FinalPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("registered file missing: %v", err)
	}
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Error("temp dossier still present after registration")
	}

	if recorded.number != 12 || recorded.on != "05.03.2024" || recorded.path != want {
		t.Errorf("recorder got %+v", recorded)
	}
	if seq.Peek() != 13 {
		t.Errorf("sequencer at %d after registration, want 13", seq.Peek())
	}
}

func TestReviewRegisterRecorderFailure(t *testing.T) {
	seq := journal.NewSequencer(0)
	rec := func(context.Context, int, string, string) error { return errors.New("journal on read-only disk") }
	e, registered, _ := newTestEngine(t, scriptedPrompter{decision: DecisionRegister}, seq, rec)

	temp := writeTempPDF(t, t.TempDir())
	res := e.Review(context.Background(), Item{TempPDF: temp, ReceivedValid: true, Received: time.Now()})

	if res.Outcome != OutcomeError {
		t.Fatalf("Outcome = %s, want ERROR", res.Outcome)
	}
	// The dossier must be back at its temp location and the number unconsumed.
	if _, err := os.Stat(temp); err != nil {
		t.Errorf("temp dossier not restored: %v", err)
	}
	entries, err := os.ReadDir(registered)
	if err != nil {
		t.Fatalf("reading registered dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("registered dir not empty after failed recording: %v", entries)
	}
	if seq.Peek() != 1 {
		t.Errorf("sequencer advanced to %d despite failure", seq.Peek())
	}
}

func TestReviewRegisterOverwritesCollision(t *testing.T) {
	seq := journal.NewSequencer(11)
	e, registered, _ := newTestEngine(t, scriptedPrompter{decision: DecisionRegister}, seq, nil)

	stale := filepath.Join(registered, "вх.№ 12 от 05.03.2024.pdf")
	if err := os.WriteFile(stale, []byte("%PDF-1.4 stale"), 0o644); err != nil {
		t.Fatalf("writing stale file: %v", err)
	}

	temp := writeTempPDF(t, t.TempDir())
	item := Item{
		TempPDF:       temp,
		Received:      time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		ReceivedValid: true,
	}
	res := e.Review(context.Background(), item)
	if res.Outcome != OutcomeRegistered {
		t.Fatalf("Outcome = %s, want REGISTERED", res.Outcome)
	}

	data, err := os.ReadFile(stale)
	if err != nil {
		t.Fatalf("reading registered file: %v", err)
	}
	if string(data) != "%PDF-1.4 draft" {
		t.Errorf("collision target holds %q, want the new dossier", data)
	}

	entries, err := os.ReadDir(registered)
	if err != nil {
		t.Fatalf("reading registered dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("registered dir has %d files, want 1 (no duplicate copies)", len(entries))
	}
}

func TestReviewDownload(t *testing.T) {
	seq := journal.NewSequencer(0)
	e, _, downloaded := newTestEngine(t, scriptedPrompter{decision: DecisionDownload}, seq, nil)

	temp := writeTempPDF(t, t.TempDir())
	item := Item{
		TempPDF:       temp,
		Subject:       "Счёт на оплату",
		Received:      time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		ReceivedValid: true,
	}
	res := e.Review(context.Background(), item)

	if res.Outcome != OutcomeDownloaded {
		t.Fatalf("Outcome = %s, want DOWNLOADED", res.Outcome)
	}
	want := filepath.Join(downloaded, "05-03-2024_Счёт_на_оплату.pdf")
	if res.FinalPath != want {
		t.Errorf("FinalPath = %q, want %q", res.FinalPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}
	if seq.Peek() != 1 {
		t.Errorf("download consumed a registration number")
	}
}

func TestReviewSkip(t *testing.T) {
	seq := journal.NewSequencer(0)
	e, _, _ := newTestEngine(t, scriptedPrompter{decision: DecisionSkip}, seq, nil)

	tempDir := t.TempDir()
	temp := writeTempPDF(t, tempDir)
	attachDir := filepath.Join(tempDir, "attachments")
	if err := os.MkdirAll(attachDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(attachDir, "1_a.bin"), []byte{1}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res := e.Review(context.Background(), Item{TempPDF: temp, AttachmentDir: attachDir})
	if res.Outcome != OutcomeSkipped {
		t.Fatalf("Outcome = %s, want SKIPPED", res.Outcome)
	}
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Error("skipped dossier not deleted")
	}
	if _, err := os.Stat(attachDir); !os.IsNotExist(err) {
		t.Error("attachment folder not deleted on skip")
	}
}

func TestReviewMissingTempPDF(t *testing.T) {
	seq := journal.NewSequencer(0)
	e, _, _ := newTestEngine(t, scriptedPrompter{decision: DecisionRegister}, seq, nil)

	res := e.Review(context.Background(), Item{TempPDF: filepath.Join(t.TempDir(), "gone.pdf")})
	if res.Outcome != OutcomeError {
		t.Fatalf("Outcome = %s, want ERROR", res.Outcome)
	}
	if seq.Peek() != 1 {
		t.Errorf("sequencer advanced for a missing dossier")
	}
}
