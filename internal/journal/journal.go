// Package journal keeps the registration journal: a strictly sequential
// incoming-number counter and a CSV file with one row per registered
// message.
package journal

import (
	"encoding/csv"
	"fmt"
	"os"
)

// utf8BOM lets spreadsheet software pick the right encoding when the
// journal is opened directly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var csvHeader = []string{"Входящий номер", "Дата регистрации", "Отправитель", "Тема письма"}

// Label formats an incoming number for display and filenames.
func Label(n int) string {
	return fmt.Sprintf("вх.№ %d", n)
}

// Sequencer hands out sequential registration numbers. Peek shows the
// number a registration would get; Advance consumes it only after the
// registration actually succeeded.
type Sequencer struct {
	next int
}

// NewSequencer starts counting after the last number already used.
func NewSequencer(last int) *Sequencer {
	return &Sequencer{next: last + 1}
}

// Peek returns the number the next registration will receive.
func (s *Sequencer) Peek() int { return s.next }

// Advance consumes the current number and returns it.
func (s *Sequencer) Advance() int {
	n := s.next
	s.next++
	return n
}

// Entry is one registered message.
type Entry struct {
	Number     int
	Registered string // DD.MM.YYYY
	Sender     string
	Subject    string
}

// CSVJournal appends registrations to a CSV file, creating it with a
// BOM and a header row on first write.
type CSVJournal struct {
	path string
}

func NewCSV(path string) *CSVJournal {
	return &CSVJournal{path: path}
}

// Append writes one entry. The header is written only when the file did
// not exist before this call.
func (j *CSVJournal) Append(e Entry) error {
	_, statErr := os.Stat(j.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	if fresh {
		if _, err := f.Write(utf8BOM); err != nil {
			return fmt.Errorf("writing journal: %w", err)
		}
	}

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing journal header: %w", err)
		}
	}
	row := []string{Label(e.Number), e.Registered, e.Sender, e.Subject}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing journal row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing journal: %w", err)
	}
	return nil
}
