// Package pdfmerge concatenates the composed primary document with the
// PDF attachments collected for one message. Merging is a capability:
// when the backend is disabled every merge reports failure and callers
// fall back to the unmerged primary document.
package pdfmerge

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNothingMerged reports that no input survived validation.
var ErrNothingMerged = errors.New("no mergeable documents")

// ErrDisabled reports that the merge backend is not available.
var ErrDisabled = errors.New("pdf merging disabled")

// Merger appends PDFs to a primary document.
type Merger interface {
	// Merge writes primary followed by attachments, in order, to out.
	// primary is never modified. Inputs that are missing or fail to
	// parse are skipped with a warning; if nothing at all survives the
	// merge fails.
	Merge(primary string, attachments []string, out string) error

	// Available reports whether merging can succeed at all.
	Available() bool
}

// PDFCPU is the production Merger.
type PDFCPU struct {
	conf   *model.Configuration
	logger *slog.Logger
}

// New creates a Merger with relaxed validation, so slightly out-of-spec
// attachments from the wild still merge.
func New(logger *slog.Logger) *PDFCPU {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFCPU{conf: conf, logger: logger}
}

func (m *PDFCPU) Available() bool { return true }

func (m *PDFCPU) Merge(primary string, attachments []string, out string) error {
	var inFiles []string
	for _, path := range append([]string{primary}, attachments...) {
		if _, err := os.Stat(path); err != nil {
			m.logger.Warn("merge input missing, skipping", "path", path)
			continue
		}
		if err := api.ValidateFile(path, m.conf); err != nil {
			m.logger.Warn("merge input is not a valid pdf, skipping", "path", path, "error", err)
			continue
		}
		inFiles = append(inFiles, path)
	}

	if len(inFiles) == 0 {
		return ErrNothingMerged
	}

	if err := api.MergeCreateFile(inFiles, out, false, m.conf); err != nil {
		return fmt.Errorf("merging %d documents into %s: %w", len(inFiles), out, err)
	}
	return nil
}

// Disabled is the always-failing Merger used when merging is turned off.
type Disabled struct{}

func (Disabled) Merge(string, []string, string) error { return ErrDisabled }

func (Disabled) Available() bool { return false }

// Finalize merges primary with the collected attachment PDFs and removes
// the superseded primary on success. With no attachments, or when the
// merge fails, the primary document is returned untouched.
func Finalize(m Merger, primary string, attachments []string, out string, logger *slog.Logger) (string, bool) {
	if len(attachments) == 0 {
		return primary, false
	}

	if err := m.Merge(primary, attachments, out); err != nil {
		logger.Warn("pdf merge failed, keeping unmerged document", "primary", primary, "error", err)
		return primary, false
	}

	if err := os.Remove(primary); err != nil {
		logger.Warn("could not remove superseded primary document", "path", primary, "error", err)
	}
	return out, true
}
