package verify

import (
	"context"
	"errors"
	"net"
	"net/smtp"
	"net/textproto"
	"time"
)

// RcptResult classifies the answer to an SMTP RCPT probe.
type RcptResult int

const (
	// RcptAccepted means the server accepted the mailbox (2xx).
	RcptAccepted RcptResult = iota
	// RcptRejected means the server refused the mailbox permanently (5xx).
	RcptRejected
	// RcptTempFail means the server deferred (4xx). Worth retrying.
	RcptTempFail
	// RcptUnreachable means no server answered the probe at all.
	RcptUnreachable
)

// SMTPProber asks a mail exchanger whether it accepts a recipient.
type SMTPProber interface {
	Probe(ctx context.Context, host, to string) RcptResult
}

// DialProber is the production SMTPProber. It opens a plain SMTP session on
// port 25 and issues HELO, MAIL FROM and RCPT TO without sending a message.
type DialProber struct {
	HelloDomain string
	From        string
	Timeout     time.Duration
}

var _ SMTPProber = (*DialProber)(nil)

// Probe performs one RCPT handshake against host. The configured timeout
// bounds the whole session, connect included.
func (p *DialProber) Probe(ctx context.Context, host, to string) RcptResult {
	deadline := time.Now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "25"))
	if err != nil {
		return RcptUnreachable
	}
	defer conn.Close() //nolint:errcheck // best-effort teardown

	if err := conn.SetDeadline(deadline); err != nil {
		return RcptUnreachable
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return RcptUnreachable
	}
	defer client.Close() //nolint:errcheck // best-effort teardown

	if err := client.Hello(p.HelloDomain); err != nil {
		return classifySessionError(err)
	}
	if err := client.Mail(p.From); err != nil {
		return classifySessionError(err)
	}
	if err := client.Rcpt(to); err != nil {
		return classifyRcptError(err)
	}

	// Polite teardown; the verdict is already in.
	_ = client.Quit()
	return RcptAccepted
}

// classifyRcptError interprets the reply to RCPT TO. Only at this stage does
// a 5xx speak about the mailbox itself.
func classifyRcptError(err error) RcptResult {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch {
		case protoErr.Code >= 500:
			return RcptRejected
		case protoErr.Code >= 400:
			return RcptTempFail
		}
	}
	return RcptUnreachable
}

// classifySessionError interprets failures before RCPT TO. A server refusing
// HELO or MAIL FROM is rejecting the prober, not the mailbox, so the verdict
// stays inconclusive regardless of the reply code.
func classifySessionError(err error) RcptResult {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return RcptTempFail
	}
	return RcptUnreachable
}
