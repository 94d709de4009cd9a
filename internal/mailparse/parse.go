// Package mailparse turns raw RFC 5322 messages into a normalized header
// set, a best-effort plain-text body and a flat, depth-first part list.
// No failure here stops the pipeline: whatever cannot be decoded is
// replaced with a printable placeholder.
package mailparse

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"
)

// Placeholder strings for headers that are absent or undecodable.
const (
	NoSender     = "Отправитель отсутствует"
	NoRecipients = "Получатели отсутствуют"
	NoSubject    = "Тема отсутствует"
	NoDate       = "Дата отсутствует"
	NoBody       = "Содержимое письма не найдено."
)

// Parse decodes a raw message. It never returns an error: unparseable
// input degrades to a message whose body is the raw text.
func Parse(raw []byte) *Message {
	m := &Message{
		Raw: raw,
		Headers: Headers{
			Sender:      NoSender,
			Recipients:  NoRecipients,
			Subject:     NoSubject,
			DateDisplay: NoDate,
		},
		Body: NoBody,
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		m.Body = DecodeText(raw)
		return m
	}
	defer mr.Close()

	fillHeaders(&m.Headers, mr.Header)
	m.MessageID = strings.Trim(mr.Header.Get("Message-Id"), "<> ")

	var plainBody, htmlBody string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			// Malformed remainder; keep what was already collected.
			break
		}
		if part == nil {
			break
		}

		data, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			data = nil
		}

		p := buildPart(part.Header, data)
		m.Parts = append(m.Parts, p)

		// Body selection: the first plain-text non-attachment leaf wins;
		// HTML is kept only as a fallback.
		if !p.Attachment {
			switch p.Category {
			case CategoryTextPlain:
				if plainBody == "" {
					plainBody = DecodeText(data)
				}
			case CategoryTextHTML:
				if htmlBody == "" {
					htmlBody = DecodeText(data)
				}
			}
		}
	}

	switch {
	case strings.TrimSpace(plainBody) != "":
		m.Body = plainBody
	case htmlBody != "":
		if text := HTMLToText([]byte(htmlBody)); strings.TrimSpace(text) != "" {
			m.Body = text
		} else {
			m.Body = "HTML (без извлекаемого текста)."
		}
	}

	return m
}

// Categorize maps a content type and declared filename to a Category.
func Categorize(contentType, filename string) Category {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case strings.HasPrefix(ct, "image/"):
		return CategoryImage
	case ct == "text/plain":
		return CategoryTextPlain
	case ct == "text/html":
		return CategoryTextHTML
	case ct == "application/pdf" || ext == ".pdf":
		return CategoryPDF
	default:
		return CategoryBinary
	}
}

func fillHeaders(h *Headers, header mail.Header) {
	if date, err := header.Date(); err == nil && !date.IsZero() {
		h.Date = date
		h.DateValid = true
		h.DateDisplay = date.Local().Format("2006-01-02 15:04:05")
	} else if raw := header.Get("Date"); raw != "" {
		h.DateDisplay = "Не удалось распознать: " + raw
	}

	if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
		h.Sender = formatAddress(list[0])
	} else if raw := header.Get("From"); raw != "" {
		h.Sender = raw
	}

	if list, err := header.AddressList("To"); err == nil && len(list) > 0 {
		addrs := make([]string, 0, len(list))
		for _, a := range list {
			if a.Address != "" {
				addrs = append(addrs, a.Address)
			}
		}
		if len(addrs) > 0 {
			h.Recipients = strings.Join(addrs, ", ")
		}
	} else if raw := header.Get("To"); raw != "" {
		h.Recipients = raw
	}

	if subject, err := header.Subject(); err == nil && strings.TrimSpace(subject) != "" {
		h.Subject = subject
	} else if raw := header.Get("Subject"); raw != "" {
		h.Subject = raw
	}
}

func formatAddress(a *mail.Address) string {
	name := strings.TrimSpace(a.Name)
	switch {
	case name != "" && a.Address != "":
		return name + " <" + a.Address + ">"
	case a.Address != "":
		return a.Address
	default:
		return name
	}
}

func buildPart(h mail.PartHeader, data []byte) Part {
	var (
		contentType string
		filename    string
		attachment  bool
	)

	switch ph := h.(type) {
	case *mail.AttachmentHeader:
		contentType, _, _ = ph.ContentType()
		filename, _ = ph.Filename()
		attachment = true
	case *mail.InlineHeader:
		var params map[string]string
		contentType, params, _ = ph.ContentType()
		filename = params["name"]
		if filename == "" {
			if _, dispParams, err := ph.ContentDisposition(); err == nil {
				filename = dispParams["filename"]
			}
		}
		attachment = filename != ""
	}

	return Part{
		Category:    Categorize(contentType, filename),
		ContentType: contentType,
		Filename:    filename,
		Attachment:  attachment,
		Data:        data,
	}
}

// DecodeText interprets bytes as UTF-8 when valid, otherwise as
// single-byte Western text so every input stays printable.
func DecodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(out)
}
