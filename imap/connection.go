package imap

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
)

// Variables

// ErrLineTooLong is returned by Receive when a client line
// exceeds the configured maximum length. The start of the
// next command cannot be determined afterwards, so the
// connection has to be torn down.
var ErrLineTooLong = fmt.Errorf("request line exceeds maximum length")

// Structs

// Connection carries all information specific to one
// observed client connection on its way through the
// IMAP server.
type Connection struct {
	Conn          net.Conn
	Reader        *bufio.Reader
	ClientAddr    string
	MaxLineLength int
}

// Functions

// NewConnection creates a new element of above connection
// struct and fills it with content from a supplied, real
// network connection.
func NewConnection(c net.Conn, maxLineLength int) *Connection {

	return &Connection{
		Conn:          c,
		Reader:        bufio.NewReader(c),
		ClientAddr:    c.RemoteAddr().String(),
		MaxLineLength: maxLineLength,
	}
}

// Receive awaits the next line from the client and returns
// it with the trailing line break removed. Lines longer than
// the configured maximum yield ErrLineTooLong.
func (c *Connection) Receive() (string, error) {

	line := make([]byte, 0, 256)

	for {

		chunk, err := c.Reader.ReadSlice('\n')
		line = append(line, chunk...)

		if err == bufio.ErrBufferFull {

			if len(line) > c.MaxLineLength {
				return "", ErrLineTooLong
			}

			continue
		}

		if err != nil {
			return "", err
		}

		break
	}

	if len(line) > c.MaxLineLength {
		return "", ErrLineTooLong
	}

	return strings.TrimRight(string(line), "\r\n"), nil
}

// ReadLiteral reads exactly numBytes octets of literal data
// from the client. Nothing is interpreted, the client counted
// these bytes in its announcing '{n}' prefix.
func (c *Connection) ReadLiteral(numBytes int) ([]byte, error) {

	buf := make([]byte, numBytes)

	if _, err := io.ReadFull(c.Reader, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// Send takes in an answer text from the server and writes it
// to the connection to the client, terminated with CRLF.
func (c *Connection) Send(text string) error {

	if _, err := fmt.Fprintf(c.Conn, "%s\r\n", text); err != nil {
		return err
	}

	return nil
}

// Terminate closes the underlying network connection.
func (c *Connection) Terminate() error {
	return c.Conn.Close()
}
