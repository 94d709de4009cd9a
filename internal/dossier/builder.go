// Package dossier assembles one incoming message into a single PDF:
// header block, body text, inline previews of viewable attachments, and
// a closing summary. Non-viewable attachments are written to a per-message
// folder which is only created when something actually lands in it.
package dossier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/akozyrev/docintake/internal/compose"
	"github.com/akozyrev/docintake/internal/convert"
	"github.com/akozyrev/docintake/internal/mailparse"
)

const truncationMarker = "\n[... текст обрезан ...]"

// Result reports what ProcessAttachments did with the message parts.
type Result struct {
	// AttachmentCount is the number of attachment candidates seen.
	AttachmentCount int

	// InlineCount is how many of them were rendered into the dossier.
	InlineCount int

	// MergePaths lists PDFs to be appended after the dossier body, in
	// encounter order.
	MergePaths []string

	// AttachmentDir is the materialized folder, or empty when no file
	// was written to disk.
	AttachmentDir string

	// Annotations holds one human-readable line per candidate.
	Annotations []string
}

// Builder renders one message into a composer.
type Builder struct {
	comp        *compose.Composer
	conv        convert.Converter
	inlineLimit int
	logger      *slog.Logger

	attachmentDir string
	dirMade       bool
}

// NewBuilder binds a builder to a composer. attachmentDir is the folder
// for non-viewable attachments; it is created on first use.
func NewBuilder(comp *compose.Composer, conv convert.Converter, attachmentDir string, inlineLimit int, logger *slog.Logger) *Builder {
	return &Builder{
		comp:          comp,
		conv:          conv,
		inlineLimit:   inlineLimit,
		logger:        logger,
		attachmentDir: attachmentDir,
	}
}

// WriteHeader renders the registration header block.
func (b *Builder) WriteHeader(h mailparse.Headers) {
	b.comp.WriteParagraph("Дата получения (факт): "+h.DateDisplay, compose.StyleNormal)
	b.comp.WriteParagraph("От: "+h.Sender, compose.StyleNormal)
	b.comp.WriteParagraph("Кому: "+h.Recipients, compose.StyleNormal)
	b.comp.WriteParagraph("Тема: "+h.Subject, compose.StyleHeading)
}

// WriteBody renders the message body under its own heading.
func (b *Builder) WriteBody(body string) {
	b.comp.WriteParagraph("Содержание:", compose.StyleHeading)
	if strings.TrimSpace(body) == "" {
		body = mailparse.NoBody
	}
	b.comp.WriteParagraph(body, compose.StyleBody)
}

// ProcessAttachments handles every attachment candidate: images and text
// go straight into the dossier, PDFs and convertible documents queue for
// merging, the rest is saved to the attachment folder. A closing summary
// block is always written.
func (b *Builder) ProcessAttachments(ctx context.Context, parts []mailparse.Part) (*Result, error) {
	res := &Result{}

	for _, p := range parts {
		if !p.Attachment {
			continue
		}
		res.AttachmentCount++
		i := res.AttachmentCount

		name := p.Filename
		if name == "" {
			name = "untitled_attachment"
		}
		ann := fmt.Sprintf("Вложение #%d: %s (Тип: %s)", i, name, p.ContentType)

		switch Classify(p) {
		case ClassEmpty:
			ann += " - Пустое (нет данных)."

		case ClassInlineImage:
			b.comp.WriteParagraph(fmt.Sprintf("Вложение #%d: %s", i, name), compose.StyleHeading)
			if _, _, err := b.comp.WriteImage(p.Data); err != nil {
				b.logger.Warn("image not renderable, keeping file", "filename", name, "error", err)
				if _, saveErr := b.save(i, "original", name, p.Data); saveErr != nil {
					return nil, saveErr
				}
				ann += " - не удалось отобразить, сохранено в папке вложений."
			} else {
				res.InlineCount++
				ann += " - встроено в PDF."
			}

		case ClassInlineText:
			b.comp.WriteParagraph(fmt.Sprintf("Вложение #%d: %s", i, name), compose.StyleHeading)
			b.comp.WriteParagraph(b.truncate(mailparse.DecodeText(p.Data)), compose.StyleBody)
			res.InlineCount++
			ann += " - текст добавлен в PDF."

		case ClassInlineHTML:
			b.comp.WriteParagraph(fmt.Sprintf("Вложение #%d: %s", i, name), compose.StyleHeading)
			text := mailparse.HTMLToText(p.Data)
			if strings.TrimSpace(text) == "" {
				text = "HTML (без извлекаемого текста)."
			}
			b.comp.WriteParagraph(b.truncate(text), compose.StyleBody)
			res.InlineCount++
			ann += " - HTML (как текст) добавлен в PDF."

		case ClassMergePDF:
			path, err := b.save(i, "", name, p.Data)
			if err != nil {
				return nil, err
			}
			res.MergePaths = append(res.MergePaths, path)
			ann += " - PDF-вложение будет объединено."

		case ClassConvertible:
			suffix, merge, err := b.convertAttachment(ctx, i, name, p.Data)
			if err != nil {
				return nil, err
			}
			if merge != "" {
				res.MergePaths = append(res.MergePaths, merge)
			}
			ann += suffix

		default:
			if _, err := b.save(i, "original", name, p.Data); err != nil {
				return nil, err
			}
			ann += " - сохранено в папке вложений."
		}

		res.Annotations = append(res.Annotations, ann)
	}

	b.writeSummary(res)
	if b.dirMade {
		res.AttachmentDir = b.attachmentDir
	}
	return res, nil
}

// convertAttachment saves the original, attempts a PDF conversion and on
// success replaces the original with the converted file.
func (b *Builder) convertAttachment(ctx context.Context, i int, name string, data []byte) (suffix, mergePath string, err error) {
	origPath, err := b.save(i, "original", name, data)
	if err != nil {
		return "", "", err
	}

	if !b.conv.Available() {
		return " - сохранено в исходном виде (конвертация недоступна).", "", nil
	}

	cat, _ := convert.CategoryForExt(strings.ToLower(filepath.Ext(name)))
	sanitized := SanitizeFilename(name)
	base := strings.TrimSuffix(sanitized, filepath.Ext(sanitized))
	dst := filepath.Join(b.attachmentDir, fmt.Sprintf("%d_converted_%s.pdf", i, base))

	if err := b.conv.Convert(ctx, origPath, dst, cat); err != nil {
		b.logger.Warn("conversion failed, keeping original", "filename", name, "error", err)
		return " - не удалось сконвертировать, сохранено в исходном виде.", "", nil
	}

	if err := os.Remove(origPath); err != nil {
		b.logger.Warn("could not remove converted original", "path", origPath, "error", err)
	}
	return " - сконвертировано в PDF, будет объединено.", dst, nil
}

// writeSummary appends the attachment summary block to the dossier.
func (b *Builder) writeSummary(res *Result) {
	if res.AttachmentCount == 0 {
		b.comp.WriteParagraph("Вложения не найдены.", compose.StyleNormal)
		return
	}

	b.comp.WriteParagraph(fmt.Sprintf("Всего вложений: %d", res.AttachmentCount), compose.StyleHeading)
	for _, ann := range res.Annotations {
		b.comp.WriteParagraph("- "+escapeMarkup(ann), compose.StyleBody)
	}
}

// save writes attachment data into the lazily created folder as
// "{i}_{tag}_{sanitized}" and returns the written path.
func (b *Builder) save(i int, tag, name string, data []byte) (string, error) {
	if !b.dirMade {
		if err := os.MkdirAll(b.attachmentDir, 0o755); err != nil {
			return "", fmt.Errorf("creating attachment folder: %w", err)
		}
		b.dirMade = true
	}

	fn := fmt.Sprintf("%d_%s", i, SanitizeFilename(name))
	if tag != "" {
		fn = fmt.Sprintf("%d_%s_%s", i, tag, SanitizeFilename(name))
	}
	path := filepath.Join(b.attachmentDir, fn)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("saving attachment %s: %w", name, err)
	}
	return path, nil
}

// truncate caps inline previews by rune count.
func (b *Builder) truncate(s string) string {
	if b.inlineLimit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= b.inlineLimit {
		return s
	}
	return string(runes[:b.inlineLimit]) + truncationMarker
}

// Header values can carry angle brackets from raw address forms.
func escapeMarkup(s string) string {
	s = strings.ReplaceAll(s, "<", "&lt;")
	return strings.ReplaceAll(s, ">", "&gt;")
}
