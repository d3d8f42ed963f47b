package imap

import (
	"github.com/go-petrel/petrel/store"
)

// Constants

// The connection states an IMAP session moves through. A
// mailbox is selected if and only if the session is in
// StateMailbox.
const (
	StateNotAuthenticated State = iota
	StateAuthenticated
	StateMailbox
	StateLogout
)

// Structs and Types

// State is one of the connection states defined above.
type State int

// Session tracks the IMAP state of one client connection:
// the current protocol state, the authenticated user, and
// the selected mailbox if any.
type Session struct {
	State           State
	ClientAddr      string
	UserName        string
	SelectedMailbox *store.Mailbox
	ReadOnly        bool
}

// Functions

// Deselect drops the selected mailbox and returns the
// session to authenticated state.
func (s *Session) Deselect() {
	s.State = StateAuthenticated
	s.SelectedMailbox = nil
	s.ReadOnly = false
}
