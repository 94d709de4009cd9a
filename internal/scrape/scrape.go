// Package scrape is the companion web collector: log in to a site,
// let the operator navigate to the listing of interest, then pull
// article records off the page into a CSV file.
package scrape

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/akozyrev/docintake/internal/config"
)

// Record is one scraped article: a heading and its following paragraph.
type Record struct {
	Title string
	Body  string
}

// Scraper drives a Chrome instance through login and collection.
type Scraper struct {
	cfg    config.ScrapeConfig
	logger *slog.Logger

	// in and out carry the operator dialogue; they default to the
	// process terminal.
	in  io.Reader
	out io.Writer

	lnch    *launcher.Launcher
	browser *rod.Browser
}

func New(cfg config.ScrapeConfig, logger *slog.Logger) *Scraper {
	return &Scraper{
		cfg:    cfg,
		logger: logger,
		in:     os.Stdin,
		out:    os.Stdout,
	}
}

// Run performs the full session: launch, login, operator-guided
// navigation, collection and CSV export.
func (s *Scraper) Run(ctx context.Context) error {
	if err := s.launch(); err != nil {
		return err
	}
	defer s.close()

	page, err := s.login(ctx)
	if err != nil {
		return err
	}

	targetURL, err := s.confirmAndAskTarget()
	if err != nil {
		return err
	}
	if targetURL != "" {
		navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := page.Context(navCtx).Navigate(targetURL); err != nil {
			return fmt.Errorf("navigating to %s: %w", targetURL, err)
		}
		if err := page.Context(navCtx).WaitLoad(); err != nil {
			s.logger.Warn("page load wait timed out", "url", targetURL, "error", err)
		}
	}

	records, err := s.collect(ctx, page)
	if err != nil {
		return err
	}
	s.logger.Info("collected records", "count", len(records))

	if err := writeCSV(s.cfg.Output, records); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Сохранено записей: %d (%s)\n", len(records), s.cfg.Output)
	return nil
}

func (s *Scraper) launch() error {
	l := launcher.New().Headless(s.cfg.Headless)
	l = l.Set("disable-blink-features", "AutomationControlled")

	wsURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launching chrome: %w", err)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connecting to chrome: %w", err)
	}

	s.lnch = l
	s.browser = b
	s.logger.Info("browser launched", "headless", s.cfg.Headless)
	return nil
}

func (s *Scraper) close() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("closing browser failed", "error", err)
		}
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
	}
}

// login opens the login page on a stealth tab and submits the
// configured credentials.
func (s *Scraper) login(ctx context.Context) (*rod.Page, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("creating tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(s.cfg.LoginURL); err != nil {
		return nil, fmt.Errorf("opening login page %s: %w", s.cfg.LoginURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.logger.Warn("login page load wait timed out", "error", err)
	}

	userField, err := page.Context(navCtx).Element(`input[name="username"]`)
	if err != nil {
		return nil, fmt.Errorf("finding username field: %w", err)
	}
	if err := userField.Input(s.cfg.Username); err != nil {
		return nil, fmt.Errorf("filling username: %w", err)
	}

	passField, err := page.Context(navCtx).Element(`input[name="password"]`)
	if err != nil {
		return nil, fmt.Errorf("finding password field: %w", err)
	}
	if err := passField.Input(s.cfg.Password); err != nil {
		return nil, fmt.Errorf("filling password: %w", err)
	}

	submit, err := page.Context(navCtx).Element(`button[type="submit"]`)
	if err != nil {
		return nil, fmt.Errorf("finding submit button: %w", err)
	}
	if err := submit.Click("left", 1); err != nil {
		return nil, fmt.Errorf("submitting login form: %w", err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.logger.Warn("post-login load wait timed out", "error", err)
	}

	s.logger.Info("login submitted", "url", s.cfg.LoginURL, "user", s.cfg.Username)
	return page, nil
}

// confirmAndAskTarget pauses until the operator confirms the session
// looks right, then asks for the listing URL. An empty answer scrapes
// the current page.
func (s *Scraper) confirmAndAskTarget() (string, error) {
	reader := bufio.NewReader(s.in)

	fmt.Fprintln(s.out, "Проверьте вход в браузере и нажмите Enter для продолжения...")
	if _, err := reader.ReadString('\n'); err != nil && err != io.EOF {
		return "", fmt.Errorf("waiting for confirmation: %w", err)
	}

	fmt.Fprint(s.out, "URL страницы со списком (Enter — текущая страница): ")
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading target URL: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// collect reads article records off the page: each h2 heading paired
// with its next paragraph.
func (s *Scraper) collect(ctx context.Context, page *rod.Page) ([]Record, error) {
	collectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := page.Context(collectCtx).Eval(`() => {
		const records = [];
		for (const h of document.querySelectorAll("article h2, h2")) {
			let body = "";
			let node = h.nextElementSibling;
			while (node && node.tagName !== "P" && node.tagName !== "H2") {
				node = node.nextElementSibling;
			}
			if (node && node.tagName === "P") {
				body = node.textContent.trim();
			}
			records.push({ title: h.textContent.trim(), body });
		}
		return JSON.stringify(records);
	}`)
	if err != nil {
		return nil, fmt.Errorf("extracting records: %w", err)
	}

	return parseRecords(res.Value.Str())
}

func parseRecords(raw string) ([]Record, error) {
	var rows []struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		if r.Title == "" {
			continue
		}
		records = append(records, Record{Title: r.Title, Body: r.Body})
	}
	return records, nil
}

func writeCSV(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	// BOM for spreadsheet software, same as the registration journal.
	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Заголовок", "Текст"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range records {
		if err := w.Write([]string{r.Title, r.Body}); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
