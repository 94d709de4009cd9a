// Package convert turns office documents into PDF through a host office
// suite. Availability is probed once at startup; when no suite is found
// the pipeline degrades gracefully and originals are kept unconverted.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Category groups convertible formats by the office application that
// would open them.
type Category int

const (
	CategoryDocument Category = iota
	CategorySpreadsheet
	CategoryPresentation
)

func (c Category) String() string {
	switch c {
	case CategoryDocument:
		return "document"
	case CategorySpreadsheet:
		return "spreadsheet"
	case CategoryPresentation:
		return "presentation"
	default:
		return "unknown"
	}
}

// ErrUnavailable reports that no office suite is present on the host.
var ErrUnavailable = errors.New("office conversion unavailable")

var convertibleExts = map[string]Category{
	".doc":  CategoryDocument,
	".docx": CategoryDocument,
	".rtf":  CategoryDocument,
	".odt":  CategoryDocument,
	".txt":  CategoryDocument,
	".xls":  CategorySpreadsheet,
	".xlsx": CategorySpreadsheet,
	".ods":  CategorySpreadsheet,
	".xlsm": CategorySpreadsheet,
	".ppt":  CategoryPresentation,
	".pptx": CategoryPresentation,
	".odp":  CategoryPresentation,
}

// CategoryForExt reports whether the extension (with leading dot, any
// case) is convertible, and to which category it belongs.
func CategoryForExt(ext string) (Category, bool) {
	cat, ok := convertibleExts[strings.ToLower(ext)]
	return cat, ok
}

// Converter converts a source file into a PDF at dst.
type Converter interface {
	// Convert writes a PDF rendition of src to dst. The category selects
	// the office application family on hosts that distinguish them.
	Convert(ctx context.Context, src, dst string, cat Category) error

	// Available reports whether conversion can succeed at all.
	Available() bool
}

// Unavailable is the no-op Converter used when no office suite exists.
type Unavailable struct{}

func (Unavailable) Convert(context.Context, string, string, Category) error {
	return ErrUnavailable
}

func (Unavailable) Available() bool { return false }

// Soffice converts through a headless LibreOffice binary.
type Soffice struct {
	bin    string
	logger *slog.Logger
}

// Detect probes the host for a usable office suite and returns the
// matching Converter.
func Detect(logger *slog.Logger) Converter {
	for _, name := range []string{"soffice", "libreoffice"} {
		if path, err := exec.LookPath(name); err == nil {
			logger.Info("office conversion available", "binary", path)
			return &Soffice{bin: path, logger: logger}
		}
	}
	logger.Info("no office suite found, attachments will be kept unconverted")
	return Unavailable{}
}

func (s *Soffice) Available() bool { return true }

// Convert runs soffice --convert-to pdf into a scratch directory, then
// moves the produced file to dst. soffice names its output after the
// source basename, so the scratch directory isolates concurrent-free
// single calls from name collisions in dst's directory.
func (s *Soffice) Convert(ctx context.Context, src, dst string, cat Category) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", src, err)
	}

	outDir, err := os.MkdirTemp("", "docintake-convert-*")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, s.bin,
		"--headless", "--norestore",
		"--convert-to", "pdf",
		"--outdir", outDir,
		absSrc,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("converting %s (%s): %w: %s", filepath.Base(src), cat, err, strings.TrimSpace(string(out)))
	}

	base := strings.TrimSuffix(filepath.Base(absSrc), filepath.Ext(absSrc))
	produced := filepath.Join(outDir, base+".pdf")
	if _, err := os.Stat(produced); err != nil {
		return fmt.Errorf("converting %s (%s): no output produced", filepath.Base(src), cat)
	}

	if err := os.Rename(produced, dst); err != nil {
		// Rename fails across filesystems; fall back to a copy.
		data, readErr := os.ReadFile(produced)
		if readErr != nil {
			return fmt.Errorf("moving converted file: %w", err)
		}
		if writeErr := os.WriteFile(dst, data, 0o644); writeErr != nil {
			return fmt.Errorf("moving converted file: %w", writeErr)
		}
	}

	s.logger.Debug("converted to pdf", "src", src, "dst", dst, "category", cat.String())
	return nil
}
