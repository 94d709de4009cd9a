// Package credential resolves the IMAP mailbox password without keeping it
// in the config file. Resolution order: explicit config value, then the
// DOCINTAKE_MAIL_PASSWORD environment variable, then the OS keyring.
package credential

import (
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const (
	serviceName = "docintake"
	envPassword = "DOCINTAKE_MAIL_PASSWORD"
)

// MailPasswordKey builds the keyring key for a mailbox account.
func MailPasswordKey(username string) string {
	return "imap-password:" + username
}

// ResolveMailPassword returns the first non-empty password from the
// config value, the environment, or the keyring entry for username.
func ResolveMailPassword(configValue, username string) (string, error) {
	if configValue != "" {
		return configValue, nil
	}
	if v := os.Getenv(envPassword); v != "" {
		return v, nil
	}
	pass, err := Get(MailPasswordKey(username))
	if err != nil {
		return "", fmt.Errorf("no mailbox password in config, %s or keyring: %w", envPassword, err)
	}
	return pass, nil
}

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/docintake/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("docintake-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
