package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/akozyrev/docintake/internal/config"
	"github.com/akozyrev/docintake/internal/convert"
	"github.com/akozyrev/docintake/internal/pdfmerge"
	"github.com/akozyrev/docintake/internal/review"
	"github.com/akozyrev/docintake/tests/testutil"
)

type fakeMailbox struct {
	messages map[imap.UID][]byte
	seen     map[imap.UID]bool
}

func (f *fakeMailbox) Connect(context.Context) error { return nil }
func (f *fakeMailbox) Close() error                  { return nil }

func (f *fakeMailbox) SearchUnseen(context.Context) ([]imap.UID, error) {
	var uids []imap.UID
	for uid := range f.messages {
		if !f.seen[uid] {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

func (f *fakeMailbox) FetchRaw(_ context.Context, uid imap.UID) ([]byte, error) {
	raw, ok := f.messages[uid]
	if !ok {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}
	return raw, nil
}

func (f *fakeMailbox) MarkSeen(_ context.Context, uid imap.UID) error {
	f.seen[uid] = true
	return nil
}

type fixedPrompter struct{ decision review.Decision }

func (p fixedPrompter) Decide(review.Item, int) (review.Decision, error) { return p.decision, nil }

func (p fixedPrompter) RetryAfterError(string, error) (bool, error) { return false, nil }

func rawMessage(id, subject string) []byte {
	lines := []string{
		"From: Ivanov <ivanov@example.org>",
		"To: office@example.org",
		"Subject: " + subject,
		"Date: Tue, 05 Mar 2024 10:00:00 +0300",
		"Message-Id: <" + id + "@example.org>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Прошу зарегистрировать документ.",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func newTestPipeline(t *testing.T, mail *fakeMailbox, decision review.Decision) (*Pipeline, *config.Config) {
	t.Helper()

	cfg := &config.Config{
		OutputRoot:      filepath.Join(t.TempDir(), "out"),
		InlineTextLimit: 2000,
	}
	ledger := testutil.NewTestStore(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	seed := func(suggested int) (int, error) { return suggested, nil }

	p := New(cfg, ledger, mail, convert.Unavailable{}, pdfmerge.Disabled{}, fixedPrompter{decision: decision}, seed, logger, &bytes.Buffer{})
	return p, cfg
}

func TestRunRegistersMessage(t *testing.T) {
	mail := &fakeMailbox{
		messages: map[imap.UID][]byte{7: rawMessage("m1", "Договор поставки")},
		seen:     map[imap.UID]bool{},
	}
	p, cfg := newTestPipeline(t, mail, review.DecisionRegister)

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Registered != 1 || sum.Errors != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	want := filepath.Join(cfg.RegisteredDir(), "вх.№ 1 от 05.03.2024.pdf")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("registered dossier missing: %v", err)
	}

	data, err := os.ReadFile(cfg.JournalPath())
	if err != nil {
		t.Fatalf("reading journal: %v", err)
	}
	if !strings.Contains(string(data), "Договор поставки") {
		t.Error("journal row missing the subject")
	}

	if !mail.seen[7] {
		t.Error("registered message not marked seen")
	}

	last, err := p.ledger.LastRegisteredNumber(context.Background())
	if err != nil {
		t.Fatalf("LastRegisteredNumber: %v", err)
	}
	if last != 1 {
		t.Errorf("ledger last number = %d, want 1", last)
	}

	// Review folder must be clean afterwards.
	entries, err := os.ReadDir(cfg.ReviewDir())
	if err != nil {
		t.Fatalf("reading review dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("review dir not empty: %v", entries)
	}
}

func TestRunSkipsDuplicates(t *testing.T) {
	mail := &fakeMailbox{
		messages: map[imap.UID][]byte{7: rawMessage("m1", "Договор")},
		seen:     map[imap.UID]bool{},
	}
	p, _ := newTestPipeline(t, mail, review.DecisionRegister)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// The same message shows up unread again (another client reset the flag).
	mail.seen[7] = false
	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if sum.Duplicates != 1 || sum.Registered != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if !mail.seen[7] {
		t.Error("duplicate not re-marked seen")
	}
}

func TestRunSkipDeletesDossier(t *testing.T) {
	mail := &fakeMailbox{
		messages: map[imap.UID][]byte{3: rawMessage("m2", "Реклама")},
		seen:     map[imap.UID]bool{},
	}
	p, cfg := newTestPipeline(t, mail, review.DecisionSkip)

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Skipped != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	entries, err := os.ReadDir(cfg.ReviewDir())
	if err != nil {
		t.Fatalf("reading review dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("review dir not empty after skip: %v", entries)
	}
	if !mail.seen[3] {
		t.Error("skipped message not marked seen")
	}
}

func TestRunScan(t *testing.T) {
	scanDir := t.TempDir()
	src := filepath.Join(scanDir, "scan_0001.pdf")
	if err := os.WriteFile(src, []byte("%PDF-1.4 scan"), 0o644); err != nil {
		t.Fatalf("writing scan: %v", err)
	}

	mail := &fakeMailbox{messages: map[imap.UID][]byte{}, seen: map[imap.UID]bool{}}
	p, cfg := newTestPipeline(t, mail, review.DecisionRegister)

	sum, err := p.RunScan(context.Background(), scanDir)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if sum.Registered != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	today := time.Now().Format("02.01.2006")
	want := filepath.Join(cfg.RegisteredDir(), "вх.№ 1 от "+today+".pdf")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("registered scan missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("scan source still in place after registration")
	}
}
