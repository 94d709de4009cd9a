package mailparse

import "time"

// Category is a coarse content classification of a message part.
type Category string

const (
	CategoryImage     Category = "image"
	CategoryTextPlain Category = "text/plain"
	CategoryTextHTML  Category = "text/html"
	CategoryPDF       Category = "application/pdf"
	CategoryBinary    Category = "other-binary"
)

// Headers is the decoded header set of one message. String fields are
// always populated; decode failures leave the raw header value or a
// sentinel in place rather than an empty string.
type Headers struct {
	Sender     string
	Recipients string
	Subject    string

	// Date is the parsed Date header; DateValid reports whether parsing
	// succeeded. DateDisplay is always printable.
	Date        time.Time
	DateValid   bool
	DateDisplay string
}

// Part is one leaf of the MIME tree, in depth-first traversal order.
type Part struct {
	Category    Category
	ContentType string

	// Filename is the decoded declared filename, empty when absent.
	Filename string

	// Attachment reports whether this part is an attachment candidate:
	// it declares a filename or carries an attachment disposition.
	Attachment bool

	// Data is the transfer-decoded payload. Text parts with a known
	// charset arrive converted to UTF-8.
	Data []byte
}

// Message is the parsed form of one raw mail message.
type Message struct {
	Headers Headers

	// Body is the selected best-effort plain-text body.
	Body string

	// Parts lists all leaf parts in depth-first order.
	Parts []Part

	// MessageID is the Message-Id header value, used for deduplication.
	MessageID string

	Raw []byte
}

// Attachments returns the attachment-candidate parts in encounter order.
func (m *Message) Attachments() []Part {
	var out []Part
	for _, p := range m.Parts {
		if p.Attachment {
			out = append(out, p)
		}
	}
	return out
}
