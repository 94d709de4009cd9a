// Package review drives the operator decision for each rendered
// dossier: register it under the next incoming number, keep it without
// registration, or discard it.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/akozyrev/docintake/internal/dossier"
	"github.com/akozyrev/docintake/internal/journal"
)

// Decision is the operator's choice for one dossier.
type Decision int

const (
	DecisionRegister Decision = iota
	DecisionDownload
	DecisionSkip
)

// Outcome is the terminal state of one review.
type Outcome string

const (
	OutcomeRegistered Outcome = "REGISTERED"
	OutcomeDownloaded Outcome = "DOWNLOADED"
	OutcomeSkipped    Outcome = "SKIPPED"
	OutcomeError      Outcome = "ERROR"
)

// Item is one dossier offered for review.
type Item struct {
	// TempPDF is the rendered dossier awaiting a decision.
	TempPDF string

	// AttachmentDir is the per-message attachment folder, empty when
	// none was created.
	AttachmentDir string

	Sender   string
	Subject  string
	Received time.Time
	// ReceivedValid reports whether Received was parsed from the
	// message; otherwise the registration date falls back to today.
	ReceivedValid bool

	Pages int
}

// Result reports what happened to one reviewed item.
type Result struct {
	Outcome Outcome

	// Number is the assigned incoming number for registered items.
	Number int

	// FinalPath is where the dossier ended up, empty for skipped items.
	FinalPath string
}

// Prompter is the operator interface. Implementations block until the
// operator answers.
type Prompter interface {
	// Decide asks for the decision on one item.
	Decide(item Item, nextNumber int) (Decision, error)

	// RetryAfterError asks whether to retry a failed file move.
	RetryAfterError(path string, cause error) (bool, error)
}

// Recorder persists a successful registration. A non-nil error undoes
// the registration: the dossier is moved back and the number stays
// unconsumed.
type Recorder func(ctx context.Context, number int, registeredOn, finalPath string) error

// Engine applies operator decisions to rendered dossiers.
type Engine struct {
	prompter      Prompter
	seq           *journal.Sequencer
	registeredDir string
	downloadedDir string
	record        Recorder
	logger        *slog.Logger
}

func NewEngine(p Prompter, seq *journal.Sequencer, registeredDir, downloadedDir string, record Recorder, logger *slog.Logger) *Engine {
	return &Engine{
		prompter:      p,
		seq:           seq,
		registeredDir: registeredDir,
		downloadedDir: downloadedDir,
		record:        record,
		logger:        logger,
	}
}

// Review runs one item through the decision flow and returns its
// terminal outcome. Failures never panic the batch: they produce
// OutcomeError and leave temp artifacts in place for inspection.
func (e *Engine) Review(ctx context.Context, item Item) Result {
	if _, err := os.Stat(item.TempPDF); err != nil {
		e.logger.Error("dossier missing before review", "path", item.TempPDF, "error", err)
		return Result{Outcome: OutcomeError}
	}

	openViewer(item.TempPDF, e.logger)

	decision, err := e.prompter.Decide(item, e.seq.Peek())
	if err != nil {
		e.logger.Error("decision prompt failed", "error", err)
		return Result{Outcome: OutcomeError}
	}

	switch decision {
	case DecisionRegister:
		return e.register(ctx, item)
	case DecisionDownload:
		return e.download(item)
	default:
		return e.skip(item)
	}
}

func (e *Engine) register(ctx context.Context, item Item) Result {
	n := e.seq.Peek()
	registeredOn := e.registrationDate(item)
	target := filepath.Join(e.registeredDir, fmt.Sprintf("%s от %s.pdf", journal.Label(n), registeredOn))

	if _, err := os.Stat(target); err == nil {
		e.logger.Warn("registered file already exists, overwriting", "path", target)
	}

	if !e.moveWithRetry(item.TempPDF, target) {
		return Result{Outcome: OutcomeError}
	}

	if err := e.record(ctx, n, registeredOn, target); err != nil {
		e.logger.Error("recording registration failed, undoing file move", "number", n, "error", err)
		if mvErr := os.Rename(target, item.TempPDF); mvErr != nil {
			e.logger.Error("could not move dossier back", "path", target, "error", mvErr)
		}
		return Result{Outcome: OutcomeError}
	}

	e.seq.Advance()
	return Result{Outcome: OutcomeRegistered, Number: n, FinalPath: target}
}

func (e *Engine) download(item Item) Result {
	name := fmt.Sprintf("%s_%s.pdf",
		e.registrationDateDashed(item),
		dossier.SanitizeFilename(truncateName(item.Subject)),
	)
	target := filepath.Join(e.downloadedDir, name)

	if !e.moveWithRetry(item.TempPDF, target) {
		return Result{Outcome: OutcomeError}
	}
	return Result{Outcome: OutcomeDownloaded, FinalPath: target}
}

func (e *Engine) skip(item Item) Result {
	if err := os.Remove(item.TempPDF); err != nil {
		e.logger.Warn("could not remove skipped dossier", "path", item.TempPDF, "error", err)
	}
	if item.AttachmentDir != "" {
		if err := os.RemoveAll(item.AttachmentDir); err != nil {
			e.logger.Warn("could not remove attachment folder", "path", item.AttachmentDir, "error", err)
		}
	}
	return Result{Outcome: OutcomeSkipped}
}

// moveWithRetry renames src to dst, asking the operator to retry on
// failure (a locked viewer or permissions are usually fixable).
func (e *Engine) moveWithRetry(src, dst string) bool {
	for {
		err := os.Rename(src, dst)
		if err == nil {
			return true
		}

		e.logger.Warn("could not move dossier", "from", src, "to", dst, "error", err)
		retry, promptErr := e.prompter.RetryAfterError(dst, err)
		if promptErr != nil || !retry {
			return false
		}
	}
}

func (e *Engine) registrationDate(item Item) string {
	if item.ReceivedValid {
		return item.Received.Format("02.01.2006")
	}
	return time.Now().Format("02.01.2006")
}

func (e *Engine) registrationDateDashed(item Item) string {
	if item.ReceivedValid {
		return item.Received.Format("02-01-2006")
	}
	return time.Now().Format("02-01-2006")
}

func truncateName(s string) string {
	const max = 60
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
