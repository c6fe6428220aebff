package dispatch

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faillog/internal/config"
)

// fakeSMTP accepts one session and records the client's commands.
type fakeSMTP struct {
	ln       net.Listener
	startTLS bool

	mu       sync.Mutex
	commands []string
}

func newFakeSMTP(t *testing.T, startTLS bool) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln, startTLS: startTLS}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTP) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *fakeSMTP) record(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
}

func (s *fakeSMTP) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *fakeSMTP) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)
	reply := func(lines ...string) {
		_, _ = conn.Write([]byte(strings.Join(lines, "\r\n") + "\r\n"))
	}
	reply("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		s.record(verb)
		switch verb {
		case "EHLO":
			if s.startTLS {
				reply("250-fake", "250-STARTTLS", "250 8BITMIME")
			} else {
				reply("250-fake", "250 8BITMIME")
			}
		case "STARTTLS":
			reply("454 TLS not available")
			return
		case "DATA":
			reply("354 go ahead")
			for {
				body, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if body == ".\r\n" {
					break
				}
			}
			reply("250 queued")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 ok")
		}
	}
}

func testEmail() Email {
	return Email{From: "faillog@example.com", To: []string{"ops@example.com"}, Subject: "BLAZE", HTML: "<p>down</p>"}
}

func TestSMTPMailerPlainDelivery(t *testing.T) {
	srv := newFakeSMTP(t, false)
	m := NewSMTPMailer(config.EmailConfig{SMTPHostname: "127.0.0.1", SMTPPort: srv.port()})

	require.NoError(t, m.Send(context.Background(), testEmail()))
	cmds := srv.seen()
	assert.Contains(t, cmds, "MAIL")
	assert.Contains(t, cmds, "DATA")
	assert.NotContains(t, cmds, "STARTTLS")
}

func TestSMTPMailerTLSFlagUsesStartTLS(t *testing.T) {
	srv := newFakeSMTP(t, true)
	m := NewSMTPMailer(config.EmailConfig{SMTPHostname: "127.0.0.1", SMTPPort: srv.port(), SMTPUseSSL: true})

	// the relay refuses STARTTLS, so delivery fails after the plaintext greeting
	require.Error(t, m.Send(context.Background(), testEmail()))
	cmds := srv.seen()
	require.NotEmpty(t, cmds)
	assert.Equal(t, "EHLO", cmds[0])
	assert.Contains(t, cmds, "STARTTLS")
	assert.NotContains(t, cmds, "MAIL")
}

func TestSMTPMailerNeedsHostAndRecipients(t *testing.T) {
	assert.Error(t, NewSMTPMailer(config.EmailConfig{}).Send(context.Background(), testEmail()))

	e := testEmail()
	e.To = nil
	assert.Error(t, NewSMTPMailer(config.EmailConfig{SMTPHostname: "127.0.0.1"}).Send(context.Background(), e))
}
