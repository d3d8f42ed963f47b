package lmtp

import (
	"bufio"
	"fmt"
	"net"
	"strings"
)

// Structs

// Connection carries all information specific to one observed
// client connection on its way through the LMTP server.
type Connection struct {
	Conn       net.Conn
	Reader     *bufio.Reader
	ClientAddr string
}

// Functions

// NewConnection creates a new element of above connection
// struct and fills it with content from a supplied, real
// network connection.
func NewConnection(c net.Conn) *Connection {

	return &Connection{
		Conn:       c,
		Reader:     bufio.NewReader(c),
		ClientAddr: c.RemoteAddr().String(),
	}
}

// Receive awaits the next line from the client and returns it
// with the trailing line break removed.
func (c *Connection) Receive() (string, error) {

	text, err := c.Reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(text, "\r\n"), nil
}

// Send takes in a reply text from the server and writes it to
// the connection to the client, terminated with CRLF.
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
