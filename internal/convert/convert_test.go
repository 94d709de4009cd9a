package convert

import (
	"context"
	"errors"
	"testing"
)

func TestCategoryForExt(t *testing.T) {
	tests := []struct {
		ext string
		cat Category
		ok  bool
	}{
		{".docx", CategoryDocument, true},
		{".DOCX", CategoryDocument, true},
		{".rtf", CategoryDocument, true},
		{".xlsx", CategorySpreadsheet, true},
		{".xlsm", CategorySpreadsheet, true},
		{".pptx", CategoryPresentation, true},
		{".odp", CategoryPresentation, true},
		{".pdf", 0, false},
		{".zip", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		cat, ok := CategoryForExt(tt.ext)
		if ok != tt.ok {
			t.Errorf("CategoryForExt(%q) ok = %v, want %v", tt.ext, ok, tt.ok)
			continue
		}
		if ok && cat != tt.cat {
			t.Errorf("CategoryForExt(%q) = %s, want %s", tt.ext, cat, tt.cat)
		}
	}
}

func TestUnavailable(t *testing.T) {
	var c Converter = Unavailable{}
	if c.Available() {
		t.Error("Unavailable reports available")
	}
	err := c.Convert(context.Background(), "in.docx", "out.pdf", CategoryDocument)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
