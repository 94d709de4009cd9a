package dossier

import (
	"path/filepath"
	"strings"

	"github.com/akozyrev/docintake/internal/convert"
	"github.com/akozyrev/docintake/internal/mailparse"
)

// Class describes how an attachment ends up in the dossier.
type Class int

const (
	// ClassEmpty marks a part with no payload at all.
	ClassEmpty Class = iota
	// ClassInlineImage is drawn directly onto a dossier page.
	ClassInlineImage
	// ClassInlineText is appended to the dossier as a text preview.
	ClassInlineText
	// ClassInlineHTML is stripped to text and appended as a preview.
	ClassInlineHTML
	// ClassMergePDF is saved to disk and merged after the dossier body.
	ClassMergePDF
	// ClassConvertible is an office document convertible to PDF.
	ClassConvertible
	// ClassBinary is saved to disk and only mentioned in the summary.
	ClassBinary
)

// Classify decides the handling for a single message part.
func Classify(p mailparse.Part) Class {
	if len(p.Data) == 0 {
		return ClassEmpty
	}

	switch p.Category {
	case mailparse.CategoryImage:
		return ClassInlineImage
	case mailparse.CategoryTextPlain:
		return ClassInlineText
	case mailparse.CategoryTextHTML:
		return ClassInlineHTML
	case mailparse.CategoryPDF:
		return ClassMergePDF
	}

	ext := strings.ToLower(filepath.Ext(p.Filename))
	if _, ok := convert.CategoryForExt(ext); ok {
		return ClassConvertible
	}
	return ClassBinary
}
