// Package mailbox wraps go-imap v2 for the intake pipeline: one
// persistent authenticated session over which unread messages are
// listed, fetched raw and marked seen.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Client is a connected IMAP session bound to one mailbox. It is not
// safe for concurrent use; the pipeline drives it sequentially.
type Client struct {
	server   string
	port     string
	username string
	password string
	mailbox  string
	logger   *slog.Logger

	conn *imapclient.Client
}

// New creates an unconnected client. Call Connect before any other
// method.
func New(server, port, username, password, mailbox string, logger *slog.Logger) *Client {
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &Client{
		server:   server,
		port:     port,
		username: username,
		password: password,
		mailbox:  mailbox,
		logger:   logger,
	}
}

// Connect dials the server over implicit TLS, authenticates and selects
// the mailbox.
func (c *Client) Connect(_ context.Context) error {
	addr := c.server + ":" + c.port

	conn, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := conn.Login(c.username, c.password).Wait(); err != nil {
		_ = conn.Logout().Wait()
		return fmt.Errorf("authentication failed for %s: %w", c.username, err)
	}

	if _, err := conn.Select(c.mailbox, nil).Wait(); err != nil {
		_ = conn.Logout().Wait()
		return fmt.Errorf("selecting %s: %w", c.mailbox, err)
	}

	c.conn = conn
	c.logger.Info("connected to mailbox", "server", addr, "mailbox", c.mailbox)
	return nil
}

// Close logs out and drops the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout().Wait()
	c.conn = nil
	return err
}

// SearchUnseen returns the UIDs of all unread messages in the selected
// mailbox, in mailbox order.
func (c *Client) SearchUnseen(_ context.Context) ([]imap.UID, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := c.conn.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unread messages: %w", err)
	}
	return data.AllUIDs(), nil
}

// FetchRaw downloads the complete raw message for one UID without
// setting the Seen flag.
func (c *Client) FetchRaw(_ context.Context, uid imap.UID) ([]byte, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := c.conn.Fetch(imap.UIDSetNum(uid), fetchOpts)

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("collecting message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message UID %d has no body", uid)
	}

	// The body is in hand; a close error at this point is not a fetch
	// failure.
	if err := fetchCmd.Close(); err != nil {
		c.logger.Warn("closing fetch command failed", "uid", uid, "error", err)
	}
	return raw, nil
}

// MarkSeen sets the Seen flag on one message.
func (c *Client) MarkSeen(_ context.Context, uid imap.UID) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	storeCmd := c.conn.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking UID %d seen: %w", uid, err)
	}
	return nil
}
