package imap

import (
	"fmt"
	"time"

	"github.com/go-petrel/petrel/store"
)

// Constants

// internalDateFormat is the date-time layout of the IMAP
// INTERNALDATE fetch item.
const internalDateFormat = "02-Jan-2006 15:04:05 -0700"

// Functions

// formatInternalDate renders a message's internal date in
// IMAP wire form.
func formatInternalDate(t time.Time) string {
	return fmt.Sprintf("\"%s\"", t.Format(internalDateFormat))
}

// formatLiteral renders arbitrary content as an IMAP literal,
// the length announcement followed by the raw octets. The
// octets are passed through untouched, which is the only way
// to transmit content containing line breaks or quotes.
func formatLiteral(content []byte) string {
	return fmt.Sprintf("{%d}\r\n%s", len(content), content)
}

// fetchFlags renders the flag set of a message snapshot for a
// FETCH response, including the Recent pseudo flag.
func fetchFlags(msg *store.Message) string {

	flags := msg.Flags.Copy()

	if msg.Recent {
		flags.Add(store.FlagRecent)
	}

	return flags.String()
}

// allSystemFlags is the flag list advertised in the untagged
// FLAGS and PERMANENTFLAGS responses of a SELECT.
func allSystemFlags() string {
	return "(\\Answered \\Deleted \\Draft \\Flagged \\Seen)"
}
