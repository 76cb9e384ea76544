package confirmation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/sync/semaphore"
)

// ErrMailDisabled is returned by the mailer used when no SMTP host is configured.
var ErrMailDisabled = errors.New("mail transport not configured")

// Inline is an image referenced from the HTML body by cid:Name.
type Inline struct {
	Name string
	Data []byte
}

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Inline  []Inline
}

// Mailer hands a message to the mail transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds the SMTP account used for confirmations.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

// SMTPMailer sends over SMTP with STARTTLS.
type SMTPMailer struct {
	// go-mail v0.4 clients hold one connection; one send at a time.
	slot     *semaphore.Weighted
	client   *mail.Client
	dialer   net.Dialer
	from     string
	fromName string

	connMu sync.Mutex
	conn   net.Conn
}

// NewSMTPMailer builds the SMTP client. It does not dial until Send.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	m := &SMTPMailer{slot: semaphore.NewWeighted(1), fromName: cfg.FromName}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithDialContextFunc(m.dial),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	m.client = client
	m.from = cfg.FromAddress
	if m.from == "" {
		m.from = cfg.User
	}
	return m, nil
}

// dial applies the caller's deadline to the connection itself; go-mail only
// bounds the TCP connect, not the greeting or EHLO that follow.
func (m *SMTPMailer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := m.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()
	return conn, nil
}

// dropConn closes the connection of the send in flight, if any.
func (m *SMTPMailer) dropConn() {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// Send dials, sends and closes. ctx bounds the wait for the client as well
// as the whole SMTP conversation.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	em := mail.NewMsg()
	if err := em.FromFormat(m.fromName, m.from); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := em.To(msg.To); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	em.Subject(msg.Subject)
	em.SetBodyString(mail.TypeTextHTML, msg.HTML)
	for _, in := range msg.Inline {
		em.EmbedReadSeeker(in.Name, bytes.NewReader(in.Data))
	}
	if err := m.slot.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	defer m.slot.Release(1)

	// A server that stalls mid-conversation is cut off when ctx ends.
	stop := context.AfterFunc(ctx, m.dropConn)
	defer func() {
		stop()
		m.dropConn()
	}()
	if err := m.client.DialAndSendWithContext(ctx, em); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send: %w: %w", ctxErr, err)
		}
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// DisabledMailer rejects every send; used when SMTP is not configured.
type DisabledMailer struct{}

func (DisabledMailer) Send(context.Context, Message) error { return ErrMailDisabled }
