package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mail.Port != "993" || cfg.Mail.Mailbox != "INBOX" {
		t.Errorf("mail defaults = %+v", cfg.Mail)
	}
	if cfg.InlineTextLimit != 2000 {
		t.Errorf("InlineTextLimit = %d, want 2000", cfg.InlineTextLimit)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadReadsFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
mail:
  server: imap.example.org
  username: office@example.org
output_root: /var/intake
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("DOCINTAKE_MAIL_SERVER", "imap.override.org")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mail.Server != "imap.override.org" {
		t.Errorf("env override not applied: server = %q", cfg.Mail.Server)
	}
	if cfg.Mail.Username != "office@example.org" {
		t.Errorf("Username = %q", cfg.Mail.Username)
	}
	if cfg.OutputRoot != "/var/intake" {
		t.Errorf("OutputRoot = %q", cfg.OutputRoot)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := defaultConfig()
	in.Mail.Server = "imap.example.org"
	in.OutputRoot = "/data/intake"

	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Mail.Server != in.Mail.Server || out.OutputRoot != in.OutputRoot {
		t.Errorf("round trip lost values: %+v", out)
	}
}

func TestPathsAndEnsureDirs(t *testing.T) {
	cfg := &Config{OutputRoot: filepath.Join(t.TempDir(), "out")}

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, dir := range []string{cfg.ReviewDir(), cfg.AttachmentsRoot(), cfg.RegisteredDir(), cfg.DownloadedDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
	if filepath.Base(cfg.JournalPath()) != "registration_journal.csv" {
		t.Errorf("JournalPath = %q", cfg.JournalPath())
	}
}
