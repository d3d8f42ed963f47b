package lmtp

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"path/filepath"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/go-petrel/petrel/store"
)

// Structs

// testEnv bundles a running LMTP front end on a loopback
// socket with the store it delivers into.
type testEnv struct {
	addr      string
	mailStore *store.Store
}

// testClient speaks the line protocol against a test env.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

// Functions

// newTestEnv spins up a complete LMTP front end with a store
// in a temporary directory holding one known user.
func newTestEnv(t *testing.T) *testEnv {

	tmpDir := t.TempDir()

	mailStore, err := store.NewStore(log.NewNopLogger(), filepath.Join(tmpDir, "maildir"), ".")
	require.Nil(t, err, "expected store creation to succeed but received: %v", err)

	require.Nil(t, mailStore.EnsureUser("user0"))
	require.Nil(t, mailStore.EnsureUser("user1"))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err, "expected opening a loopback listener to succeed but received: %v", err)
	t.Cleanup(func() { listener.Close() })

	svc := NewService(log.NewNopLogger(), mailStore, "mail.example.org")
	go Run(listener, svc, log.NewNopLogger(), "mail.example.org")

	return &testEnv{
		addr:      listener.Addr().String(),
		mailStore: mailStore,
	}
}

// dial connects to the test env and consumes the greeting.
func (env *testEnv) dial(t *testing.T) *testClient {

	conn, err := net.DialTimeout("tcp", env.addr, (5 * time.Second))
	require.Nil(t, err, "expected dialing the test server to succeed but received: %v", err)
	t.Cleanup(func() { conn.Close() })

	tc := &testClient{
		t:      t,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}

	require.Equal(t, "220 mail.example.org LMTP server ready", tc.recv())

	return tc
}

// send writes one command line to the server.
func (tc *testClient) send(text string) {

	_, err := fmt.Fprintf(tc.conn, "%s\r\n", text)
	require.Nil(tc.t, err, "expected sending '%s' to succeed but received: %v", text, err)
}

// recv reads the next answer line from the server.
func (tc *testClient) recv() string {

	tc.conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	line, err := tc.reader.ReadString('\n')
	require.Nil(tc.t, err, "expected receiving an answer to succeed but received: %v", err)

	return strings.TrimRight(line, "\r\n")
}

// expect runs one command and checks the single-line answer.
func (tc *testClient) expect(command string, answer string) {

	tc.send(command)

	got := tc.recv()
	require.Equal(tc.t, answer, got, "unexpected answer to '%s'", command)
}

// lhlo introduces the client and consumes the multi-line
// capability answer.
func (tc *testClient) lhlo() {

	tc.send("LHLO client.example.org")

	require.Equal(tc.t, "250-mail.example.org", tc.recv())
	require.Equal(tc.t, "250-8BITMIME", tc.recv())
	require.Equal(tc.t, "250 PIPELINING", tc.recv())
}

// TestDeliverySequence walks one connection through a
// complete delivery to two recipients.
func TestDeliverySequence(t *testing.T) {

	env := newTestEnv(t)
	tc := env.dial(t)

	tc.lhlo()

	tc.expect("MAIL FROM:<sender@example.org>", "250 OK")
	tc.expect("RCPT TO:<user0@example.org>", "250 OK")
	tc.expect("RCPT TO:<user1@example.org>", "250 OK")

	tc.expect("DATA", "354 Start mail input; end with <CRLF>.<CRLF>")

	tc.send("From: sender@example.org")
	tc.send("Subject: dots ahead")
	tc.send("")
	tc.send("..a line starting with a dot")
	tc.send("plain line")
	tc.send(".")

	// One status line per recipient, in declaration order.
	require.Equal(t, "250 OK", tc.recv())
	require.Equal(t, "250 OK", tc.recv())

	wantContent := "From: sender@example.org\r\nSubject: dots ahead\r\n\r\n.a line starting with a dot\r\nplain line\r\n"

	for _, user := range []string{"user0", "user1"} {

		mbox, err := env.mailStore.OpenMailbox(user, "INBOX")
		require.Nil(t, err, "expected opening INBOX of %s to succeed but received: %v", user, err)
		require.Equal(t, uint32(1), mbox.Count(), "expected one delivered message for %s", user)

		content, err := mbox.Content(1)
		require.Nil(t, err, "expected reading delivered content to succeed but received: %v", err)
		require.Equal(t, wantContent, string(content), "unexpected delivered content for %s", user)
	}

	// The envelope is gone after DATA, a second delivery needs
	// a fresh MAIL FROM.
	tc.expect("DATA", "503 Bad sequence - no recipients")

	tc.expect("QUIT", "221 mail.example.org Closing connection")
}

// TestRecipientChecks verifies that unknown users are refused
// at RCPT time and do not affect sibling recipients.
func TestRecipientChecks(t *testing.T) {

	env := newTestEnv(t)
	tc := env.dial(t)

	tc.lhlo()

	tc.expect("MAIL FROM:<sender@example.org>", "250 OK")
	tc.expect("RCPT TO:<user0@example.org>", "250 OK")
	tc.expect("RCPT TO:<stranger@example.org>", "550 No such user")
	tc.expect("RCPT TO:<broken <address>", "501 Syntax error in parameters")

	tc.expect("DATA", "354 Start mail input; end with <CRLF>.<CRLF>")
	tc.send("short message")
	tc.send(".")

	// Only the accepted recipient gets a status line.
	require.Equal(t, "250 OK", tc.recv())

	mbox, err := env.mailStore.OpenMailbox("user0", "INBOX")
	require.Nil(t, err, "expected opening INBOX to succeed but received: %v", err)
	require.Equal(t, uint32(1), mbox.Count())

	tc.expect("QUIT", "221 mail.example.org Closing connection")
}

// TestCommandSequencing checks the 503 answers around the
// envelope life cycle.
func TestCommandSequencing(t *testing.T) {

	env := newTestEnv(t)
	tc := env.dial(t)

	// Nothing before LHLO.
	tc.expect("MAIL FROM:<sender@example.org>", "503 Bad sequence of commands")

	tc.send("LHLO")
	require.Equal(t, "501 Syntax error in parameters", tc.recv())

	tc.lhlo()

	tc.expect("RCPT TO:<user0@example.org>", "503 Bad sequence of commands")
	tc.expect("NOOP", "250 OK")
	tc.expect("FROBNICATE", "500 Syntax error, command unrecognized")

	tc.expect("MAIL FROM:<sender@example.org>", "250 OK")
	tc.expect("MAIL FROM:<second@example.org>", "503 Bad sequence of commands")
	tc.expect("RCPT TO:<user0@example.org>", "250 OK")

	// RSET discards the envelope.
	tc.expect("RSET", "250 OK")
	tc.expect("DATA", "503 Bad sequence - no recipients")
	tc.expect("RCPT TO:<user0@example.org>", "503 Bad sequence of commands")

	tc.expect("QUIT", "221 mail.example.org Closing connection")
}
