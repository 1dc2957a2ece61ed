// Package mail sends transactional email. Delivery is asynchronous: callers
// enqueue a message and the dispatcher retries transient failures in the
// background without ever surfacing an error to the request path.
package mail

import (
	"context"
	"errors"
	"sync"
	"time"

	"gopkg.in/gomail.v2"
)

// Sender is the interface for sending a single email message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail over SMTP using gomail.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender creates an SMTPSender from config.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send composes and delivers a plain-text message. The SMTP dial and send run
// in a goroutine so the context deadline bounds the whole exchange.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// logSender is used when no SMTP host is configured (dev mode). It succeeds
// without delivering anything so flows that send mail remain testable locally.
type logSender struct {
	logf func(to, subject, body string)
}

// NewLogSender returns a Sender that passes each message to logf instead of
// delivering it.
func NewLogSender(logf func(to, subject, body string)) Sender {
	return &logSender{logf: logf}
}

func (l *logSender) Send(_ context.Context, to, subject, body string) error {
	if l.logf != nil {
		l.logf(to, subject, body)
	}
	return nil
}

// ErrDispatcherClosed is returned by Enqueue after Close.
var ErrDispatcherClosed = errors.New("mail: dispatcher closed")

// Message is a queued outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Dispatcher sends queued messages in the background with bounded retry.
// A message that still fails after the final attempt is dropped; the failure
// is reported through OnFailure and never reaches the caller.
type Dispatcher struct {
	sender      Sender
	queue       chan Message
	attempts    int
	backoff     time.Duration
	sendTimeout time.Duration

	// OnFailure is called once per message that exhausts its retries.
	OnFailure func(msg Message, err error)

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// DispatcherConfig tunes the background dispatcher.
type DispatcherConfig struct {
	QueueSize   int           // default 64
	Attempts    int           // default 3
	Backoff     time.Duration // default 2s, doubled per attempt
	SendTimeout time.Duration // default 30s per attempt
}

// NewDispatcher starts a Dispatcher with a single worker goroutine.
func NewDispatcher(sender Sender, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		sender:      sender,
		queue:       make(chan Message, cfg.QueueSize),
		attempts:    cfg.Attempts,
		backoff:     cfg.Backoff,
		sendTimeout: cfg.SendTimeout,
		closed:      make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Enqueue queues a message for background delivery. It never blocks on a slow
// SMTP server; a full queue counts as a delivery failure.
func (d *Dispatcher) Enqueue(msg Message) error {
	select {
	case <-d.closed:
		return ErrDispatcherClosed
	default:
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		err := errors.New("mail: queue full")
		if d.OnFailure != nil {
			d.OnFailure(msg, err)
		}
		return err
	}
}

// Close stops the dispatcher after draining queued messages. The queue
// channel itself is never closed, so an Enqueue racing Close can at worst
// queue a message that the drain below still delivers.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		case <-d.closed:
			for {
				select {
				case msg := <-d.queue:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	var err error
	backoff := d.backoff
	for attempt := 1; attempt <= d.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		err = d.sender.Send(ctx, msg.To, msg.Subject, msg.Body)
		cancel()
		if err == nil {
			return
		}
		if attempt < d.attempts {
			select {
			case <-time.After(backoff):
			case <-d.closed:
				// Last chance on shutdown, no more waiting.
			}
			backoff *= 2
		}
	}
	if d.OnFailure != nil {
		d.OnFailure(msg, err)
	}
}
