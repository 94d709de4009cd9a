// Package runner drives one intake batch end to end: poll the mailbox,
// assemble a dossier per unread message, collect the operator decision
// and record the outcome.
package runner

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/uuid"

	"github.com/akozyrev/docintake/internal/compose"
	"github.com/akozyrev/docintake/internal/config"
	"github.com/akozyrev/docintake/internal/convert"
	"github.com/akozyrev/docintake/internal/dossier"
	"github.com/akozyrev/docintake/internal/journal"
	"github.com/akozyrev/docintake/internal/mailparse"
	"github.com/akozyrev/docintake/internal/pdfmerge"
	"github.com/akozyrev/docintake/internal/review"
	"github.com/akozyrev/docintake/internal/store"
	"github.com/akozyrev/docintake/internal/theme"
)

// Summary counts the terminal outcomes of one batch.
type Summary struct {
	Total      int
	Registered int
	Downloaded int
	Skipped    int
	Errors     int
	Duplicates int
}

// SeedFunc asks for the last used registration number, given the
// ledger's suggestion.
type SeedFunc func(suggested int) (int, error)

// Mailbox is the mail-session surface the pipeline needs.
type Mailbox interface {
	Connect(ctx context.Context) error
	Close() error
	SearchUnseen(ctx context.Context) ([]imap.UID, error)
	FetchRaw(ctx context.Context, uid imap.UID) ([]byte, error)
	MarkSeen(ctx context.Context, uid imap.UID) error
}

// Pipeline wires the intake components into one runnable batch.
type Pipeline struct {
	cfg      *config.Config
	ledger   store.Store
	mail     Mailbox
	conv     convert.Converter
	merger   pdfmerge.Merger
	prompter review.Prompter
	seed     SeedFunc
	logger   *slog.Logger
	out      io.Writer
}

func New(
	cfg *config.Config,
	ledger store.Store,
	mail Mailbox,
	conv convert.Converter,
	merger pdfmerge.Merger,
	prompter review.Prompter,
	seed SeedFunc,
	logger *slog.Logger,
	out io.Writer,
) *Pipeline {
	if out == nil {
		out = os.Stdout
	}
	return &Pipeline{
		cfg:      cfg,
		ledger:   ledger,
		mail:     mail,
		conv:     conv,
		merger:   merger,
		prompter: prompter,
		seed:     seed,
		logger:   logger,
		out:      out,
	}
}

// Run processes every unread message in the mailbox. A failure on one
// message records an ERROR outcome and moves on; only setup failures
// abort the batch.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if err := p.cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	if err := p.mail.Connect(ctx); err != nil {
		return nil, err
	}
	defer p.mail.Close()

	uids, err := p.mail.SearchUnseen(ctx)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(p.out, theme.HeaderStyle.Render(fmt.Sprintf("Непрочитанных писем: %d", len(uids))))
	if len(uids) == 0 {
		return &Summary{}, nil
	}

	seq, err := p.seedSequencer(ctx)
	if err != nil {
		return nil, err
	}
	csvJournal := journal.NewCSV(p.cfg.JournalPath())

	sum := &Summary{Total: len(uids)}
	for _, uid := range uids {
		p.processMessage(ctx, uid, seq, csvJournal, sum)
	}

	p.printSummary(sum)
	return sum, nil
}

// RunScan registers already-scanned PDF files from a directory through
// the same review flow, without touching the mailbox.
func (p *Pipeline) RunScan(ctx context.Context, dir string) (*Summary, error) {
	if err := p.cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scan directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	fmt.Fprintln(p.out, theme.HeaderStyle.Render(fmt.Sprintf("Сканов для регистрации: %d", len(files))))
	if len(files) == 0 {
		return &Summary{}, nil
	}

	seq, err := p.seedSequencer(ctx)
	if err != nil {
		return nil, err
	}
	csvJournal := journal.NewCSV(p.cfg.JournalPath())

	sum := &Summary{Total: len(files)}
	for _, path := range files {
		subject := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		fmt.Fprintln(p.out, theme.SubjectStyle.Render("Скан: "+subject))

		internalID := uuid.NewString()
		item := review.Item{TempPDF: path, Subject: subject}
		engine := p.newEngine(seq, csvJournal, internalID, "scan:"+internalID, subject, "", 0)
		res := engine.Review(ctx, item)
		p.countOutcome(sum, res)
	}

	p.printSummary(sum)
	return sum, nil
}

func (p *Pipeline) seedSequencer(ctx context.Context) (*journal.Sequencer, error) {
	suggested, err := p.ledger.LastRegisteredNumber(ctx)
	if err != nil {
		return nil, err
	}
	last, err := p.seed(suggested)
	if err != nil {
		return nil, fmt.Errorf("asking for last registration number: %w", err)
	}
	return journal.NewSequencer(last), nil
}

func (p *Pipeline) processMessage(ctx context.Context, uid imap.UID, seq *journal.Sequencer, csvJournal *journal.CSVJournal, sum *Summary) {
	raw, err := p.mail.FetchRaw(ctx, uid)
	if err != nil {
		p.logger.Error("fetching message failed", "uid", uid, "error", err)
		sum.Errors++
		return
	}

	msg := mailparse.Parse(raw)
	internalID := uuid.NewString()
	messageID := msg.MessageID
	if messageID == "" {
		// Without a Message-Id the ledger cannot deduplicate; a synthetic
		// id keeps the row unique.
		messageID = "synthetic:" + internalID
	}

	fmt.Fprintln(p.out, theme.SubjectStyle.Render("Письмо: "+msg.Headers.Subject))

	done, err := p.ledger.IsProcessed(ctx, messageID)
	if err != nil {
		p.logger.Error("ledger lookup failed", "uid", uid, "error", err)
		sum.Errors++
		return
	}
	if done {
		p.logger.Info("message already processed, marking seen", "uid", uid, "message_id", messageID)
		if err := p.mail.MarkSeen(ctx, uid); err != nil {
			p.logger.Warn("could not mark duplicate seen", "uid", uid, "error", err)
		}
		fmt.Fprintln(p.out, theme.SkippedStyle.Render("  уже обработано, пропущено"))
		sum.Duplicates++
		return
	}

	item, attachDir, buildErr := p.buildDossier(ctx, internalID, seq.Peek(), msg)
	if buildErr != nil {
		p.logger.Error("assembling dossier failed", "uid", uid, "error", buildErr)
		p.recordOutcome(ctx, internalID, messageID, uid, msg, store.OutcomeError, 0)
		fmt.Fprintln(p.out, theme.ErrorStyle.Render("  ошибка: "+buildErr.Error()))
		sum.Errors++
		return
	}
	item.AttachmentDir = attachDir

	engine := p.newEngine(seq, csvJournal, internalID, messageID, msg.Headers.Subject, msg.Headers.Sender, uint32(uid))
	res := engine.Review(ctx, item)

	if res.Outcome != review.OutcomeRegistered {
		// Registered outcomes are written by the engine's recorder.
		p.recordOutcome(ctx, internalID, messageID, uid, msg, string(res.Outcome), 0)
	}

	if res.Outcome != review.OutcomeError {
		if err := p.mail.MarkSeen(ctx, uid); err != nil {
			p.logger.Warn("could not mark message seen", "uid", uid, "error", err)
		}
	}

	p.narrate(res)
	p.countOutcome(sum, res)
}

// buildDossier renders the message into a temporary PDF and returns the
// review item for it.
func (p *Pipeline) buildDossier(ctx context.Context, internalID string, nextNumber int, msg *mailparse.Message) (review.Item, string, error) {
	tempPDF := filepath.Join(p.cfg.ReviewDir(), internalID+".pdf")

	date := time.Now()
	if msg.Headers.DateValid {
		date = msg.Headers.Date
	}
	dirName := dossier.SanitizeFilename(fmt.Sprintf("вх__%d_от_%s_attachments", nextNumber, date.Format("02-01-2006")))
	attachDir := filepath.Join(p.cfg.AttachmentsRoot(), dirName)

	comp := compose.New(tempPDF, p.cfg.FontPath)
	builder := dossier.NewBuilder(comp, p.conv, attachDir, p.cfg.InlineTextLimit, p.logger)

	builder.WriteHeader(msg.Headers)
	builder.WriteBody(msg.Body)

	res, err := builder.ProcessAttachments(ctx, msg.Parts)
	if err != nil {
		return review.Item{}, "", err
	}

	// Keep the raw message next to the extracted attachments, when a
	// folder exists at all.
	if res.AttachmentDir != "" {
		emlPath := filepath.Join(res.AttachmentDir, "original_email.eml")
		if werr := os.WriteFile(emlPath, msg.Raw, 0o644); werr != nil {
			p.logger.Warn("could not save raw message", "path", emlPath, "error", werr)
		}
	}

	pages := comp.PageCount()
	primary, err := comp.Finalize()
	if err != nil {
		return review.Item{}, res.AttachmentDir, err
	}

	mergedOut := filepath.Join(p.cfg.ReviewDir(), internalID+"_merged.pdf")
	final, merged := pdfmerge.Finalize(p.merger, primary, res.MergePaths, mergedOut, p.logger)
	if merged {
		p.logger.Info("attachments merged into dossier", "count", len(res.MergePaths))
	}

	return review.Item{
		TempPDF:       final,
		Sender:        msg.Headers.Sender,
		Subject:       msg.Headers.Subject,
		Received:      msg.Headers.Date,
		ReceivedValid: msg.Headers.DateValid,
		Pages:         pages,
	}, res.AttachmentDir, nil
}

// newEngine builds a review engine whose recorder writes the CSV
// journal first (the authoritative record) and then the ledger.
func (p *Pipeline) newEngine(seq *journal.Sequencer, csvJournal *journal.CSVJournal, internalID, messageID, subject, sender string, uid uint32) *review.Engine {
	recorder := func(ctx context.Context, number int, registeredOn, finalPath string) error {
		if err := csvJournal.Append(journal.Entry{
			Number:     number,
			Registered: registeredOn,
			Sender:     sender,
			Subject:    subject,
		}); err != nil {
			return err
		}

		err := p.ledger.RecordRegistration(ctx,
			store.ProcessedMessage{
				ID:                 internalID,
				MessageID:          messageID,
				UID:                uid,
				Sender:             sender,
				Subject:            subject,
				Outcome:            store.OutcomeRegistered,
				RegistrationNumber: sql.NullInt64{Int64: int64(number), Valid: true},
				ProcessedAt:        time.Now(),
			},
			store.RegistrationRecord{
				Number:       number,
				RegisteredOn: registeredOn,
				Sender:       sender,
				Subject:      subject,
				PDFPath:      finalPath,
			},
		)
		if err != nil {
			// The CSV row stands; the ledger is a dedupe cache and the
			// message will be marked seen regardless.
			p.logger.Error("ledger registration failed, CSV journal holds the record", "number", number, "error", err)
		}
		return nil
	}

	return review.NewEngine(p.prompter, seq, p.cfg.RegisteredDir(), p.cfg.DownloadedDir(), recorder, p.logger)
}

func (p *Pipeline) recordOutcome(ctx context.Context, internalID, messageID string, uid imap.UID, msg *mailparse.Message, outcome string, number int) {
	m := store.ProcessedMessage{
		ID:          internalID,
		MessageID:   messageID,
		UID:         uint32(uid),
		Sender:      msg.Headers.Sender,
		Subject:     msg.Headers.Subject,
		Outcome:     outcome,
		ProcessedAt: time.Now(),
	}
	if number > 0 {
		m.RegistrationNumber = sql.NullInt64{Int64: int64(number), Valid: true}
	}
	if err := p.ledger.RecordOutcome(ctx, m); err != nil {
		p.logger.Error("recording outcome failed", "uid", uid, "outcome", outcome, "error", err)
	}
}

func (p *Pipeline) narrate(res review.Result) {
	style := theme.OutcomeStyle(string(res.Outcome))
	switch res.Outcome {
	case review.OutcomeRegistered:
		fmt.Fprintln(p.out, style.Render(fmt.Sprintf("  зарегистрировано: %s", journal.Label(res.Number))))
	case review.OutcomeDownloaded:
		fmt.Fprintln(p.out, style.Render("  сохранено без регистрации: "+filepath.Base(res.FinalPath)))
	case review.OutcomeSkipped:
		fmt.Fprintln(p.out, style.Render("  пропущено"))
	default:
		fmt.Fprintln(p.out, style.Render("  ошибка обработки, файлы оставлены для разбора"))
	}
}

func (p *Pipeline) countOutcome(sum *Summary, res review.Result) {
	switch res.Outcome {
	case review.OutcomeRegistered:
		sum.Registered++
	case review.OutcomeDownloaded:
		sum.Downloaded++
	case review.OutcomeSkipped:
		sum.Skipped++
	default:
		sum.Errors++
	}
}

func (p *Pipeline) printSummary(sum *Summary) {
	fmt.Fprintln(p.out, theme.SummaryStyle.Render(fmt.Sprintf(
		"Итого: %d, зарегистрировано %d, скачано %d, пропущено %d, дубликатов %d, ошибок %d",
		sum.Total, sum.Registered, sum.Downloaded, sum.Skipped, sum.Duplicates, sum.Errors,
	)))
}
