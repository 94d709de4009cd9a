// Package compose writes paginated A4 documents with a manual top-down
// cursor: blocks that would cross the bottom margin open a fresh page
// first, and images are scaled to the content width with a shrink-before-
// paginate rule for the remaining vertical space.
package compose

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	marginMM     = 20.0
	imageGapMM   = 3.0
	imageFloorMM = 10.0
	// Space held back below an image so a caption still fits on the page.
	imageReserveMM = 15.0
)

// Style selects font size and line height for a text block.
type Style struct {
	Size       float64 // points
	LineHeight float64 // mm
	Bold       bool
}

var (
	StyleNormal  = Style{Size: 10, LineHeight: 4.8}
	StyleHeading = Style{Size: 11, LineHeight: 5.4, Bold: true}
	StyleBody    = Style{Size: 9, LineHeight: 4.4}
)

// Composer is a stateful paginated canvas bound to one output path.
// It is single-use: Finalize may be called once.
type Composer struct {
	pdf      *gofpdf.Fpdf
	path     string
	font     string
	pageW    float64
	pageH    float64
	contentW float64

	// y is the cursor, measured from the top of the page.
	y float64

	imageSeq  int
	finalized bool
}

// New creates a composer writing to path. fontPath names a Unicode TTF;
// when it does not exist the built-in Helvetica is used.
func New(path, fontPath string) *Composer {
	pdf := gofpdf.New("P", "mm", "A4", "")
	font := "Helvetica"
	if fontPath != "" {
		if _, err := os.Stat(fontPath); err == nil {
			// The same face backs the bold style; headings then render in
			// the regular weight, which the source font lacks anyway.
			pdf.AddUTF8Font("unicode", "", fontPath)
			pdf.AddUTF8Font("unicode", "B", fontPath)
			font = "unicode"
		}
	}

	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	w, h := pdf.GetPageSize()

	return &Composer{
		pdf:      pdf,
		path:     path,
		font:     font,
		pageW:    w,
		pageH:    h,
		contentW: w - 2*marginMM,
		y:        marginMM,
	}
}

// Path returns the bound output path.
func (c *Composer) Path() string { return c.path }

// PageCount returns the number of pages opened so far.
func (c *Composer) PageCount() int { return c.pdf.PageCount() }

// WriteParagraph lays out a text block. If the whole block fits neither
// in the remaining space nor on one page, it flows line by line across
// page breaks.
func (c *Composer) WriteParagraph(text string, st Style) {
	c.setFont(st)

	lines := c.wrap(text)
	blockH := float64(len(lines)) * st.LineHeight

	if c.y+blockH > c.pageH-marginMM && blockH <= c.usableHeight() {
		c.newPage(st)
	}

	for _, line := range lines {
		if c.y+st.LineHeight > c.pageH-marginMM {
			c.newPage(st)
		}
		c.pdf.SetXY(marginMM, c.y)
		c.pdf.CellFormat(c.contentW, st.LineHeight, line, "", 0, "L", false, 0, "")
		c.y += st.LineHeight
	}
	c.y += st.LineHeight * 0.3
}

// WriteImage renders image data (PNG, JPEG or GIF) scaled to the content
// width. Returns the rendered width and height in millimetres.
func (c *Composer) WriteImage(data []byte) (w, h float64, err error) {
	imgType, err := sniffImageType(data)
	if err != nil {
		return 0, 0, err
	}

	c.imageSeq++
	name := fmt.Sprintf("inline-%d", c.imageSeq)
	opts := gofpdf.ImageOptions{ImageType: imgType}

	info := c.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if c.pdf.Err() {
		return 0, 0, fmt.Errorf("registering image: %w", c.pdf.Error())
	}
	if info == nil || info.Width() <= 0 || info.Height() <= 0 {
		return 0, 0, errors.New("image has no measurable dimensions")
	}

	aspect := info.Height() / info.Width()
	dispW := c.contentW
	dispH := dispW * aspect

	// Prefer shrinking over paginating, but only down to a floor height.
	maxH := c.pageH - marginMM - c.y - imageReserveMM
	if dispH > maxH {
		dispH = maxH
		if dispH < imageFloorMM {
			dispH = imageFloorMM
		}
		dispW = dispH / aspect
		if dispW > c.contentW {
			dispW = c.contentW
			dispH = dispW * aspect
		}
	}

	if c.y+dispH > c.pageH-marginMM {
		c.newPage(StyleNormal)
	}

	c.pdf.ImageOptions(name, marginMM, c.y, dispW, dispH, false, opts, 0, "")
	if c.pdf.Err() {
		return 0, 0, fmt.Errorf("drawing image: %w", c.pdf.Error())
	}
	c.y += dispH + imageGapMM

	return dispW, dispH, nil
}

// Finalize writes the document to disk. Calling it a second time is an
// error.
func (c *Composer) Finalize() (string, error) {
	if c.finalized {
		return "", errors.New("composer already finalized")
	}
	c.finalized = true

	if err := c.pdf.OutputFileAndClose(c.path); err != nil {
		return "", fmt.Errorf("writing %s: %w", c.path, err)
	}
	return c.path, nil
}

func (c *Composer) usableHeight() float64 {
	return c.pageH - 2*marginMM
}

func (c *Composer) newPage(st Style) {
	c.pdf.AddPage()
	c.setFont(st)
	c.y = marginMM
}

func (c *Composer) setFont(st Style) {
	style := ""
	if st.Bold {
		style = "B"
	}
	c.pdf.SetFont(c.font, style, st.Size)
}

// wrap splits text on explicit newlines first, then by rendered width.
func (c *Composer) wrap(text string) []string {
	var lines []string
	for _, seg := range strings.Split(text, "\n") {
		if strings.TrimSpace(seg) == "" {
			lines = append(lines, "")
			continue
		}
		wrapped := c.pdf.SplitText(seg, c.contentW)
		if len(wrapped) == 0 {
			wrapped = []string{seg}
		}
		lines = append(lines, wrapped...)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

func sniffImageType(data []byte) (string, error) {
	switch {
	case len(data) > 8 && bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "PNG", nil
	case len(data) > 3 && bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "JPG", nil
	case len(data) > 6 && (bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a"))):
		return "GIF", nil
	default:
		return "", errors.New("unsupported image format")
	}
}
