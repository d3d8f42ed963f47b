package imap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-petrel/petrel/store"
)

// Variables

// SupportedCommands is a quick access map for checking if a
// supplied IMAP command is supported by petrel.
var SupportedCommands map[string]bool

// literalSuffix matches a literal announcement '{n}' at the
// very end of a command line.
var literalSuffix = regexp.MustCompile(`\{(\d+)\}$`)

// systemFlags maps the upper-cased wire form of each system
// flag to its canonical representation.
var systemFlags = map[string]store.Flag{
	"\\SEEN":     store.FlagSeen,
	"\\ANSWERED": store.FlagAnswered,
	"\\FLAGGED":  store.FlagFlagged,
	"\\DELETED":  store.FlagDeleted,
	"\\DRAFT":    store.FlagDraft,
}

// Structs

// Request represents the parsed content of a client command
// line sent to petrel. Payload will be examined further in
// command specific functions. A LiteralBytes value above zero
// announces that the client will follow up with that many
// octets of literal data before the line is complete.
type Request struct {
	Tag          string
	Command      string
	Payload      string
	LiteralBytes int
}

// Functions

func init() {

	// Set supported IMAP commands to true in
	// a map to have quick access.
	SupportedCommands = make(map[string]bool)

	SupportedCommands["CAPABILITY"] = true
	SupportedCommands["NOOP"] = true
	SupportedCommands["LOGOUT"] = true
	SupportedCommands["LOGIN"] = true
	SupportedCommands["SELECT"] = true
	SupportedCommands["EXAMINE"] = true
	SupportedCommands["CREATE"] = true
	SupportedCommands["DELETE"] = true
	SupportedCommands["LIST"] = true
	SupportedCommands["LSUB"] = true
	SupportedCommands["STATUS"] = true
	SupportedCommands["FETCH"] = true
	SupportedCommands["STORE"] = true
	SupportedCommands["EXPUNGE"] = true
	SupportedCommands["CLOSE"] = true
	SupportedCommands["CHECK"] = true
	SupportedCommands["UID"] = true
}

// ParseRequest takes in a raw string representing a received
// IMAP request and parses it into the defined request
// structure above. Any error encountered is worded useful to
// the IMAP protocol.
func ParseRequest(req string) (*Request, error) {

	// Split req at space symbols at maximum two times.
	tmpReq := strings.SplitN(req, " ", 3)

	// There exists no first class IMAP command with less
	// than two tokens. Return an error if only one token
	// was found.
	if len(tmpReq) < 2 {
		return nil, fmt.Errorf("* BAD Received invalid IMAP command")
	}

	// Check that the tag was not left out.
	if SupportedCommands[strings.ToUpper(tmpReq[0])] {
		return nil, fmt.Errorf("* BAD Received invalid IMAP command")
	}

	// Assign corresponding parts in new struct.
	finalReq := &Request{
		Tag:     tmpReq[0],
		Command: strings.ToUpper(tmpReq[1]),
	}

	// If the command has a defined payload, add
	// it to the struct as blob payload text.
	if len(tmpReq) > 2 {
		finalReq.Payload = tmpReq[2]
	}

	// Detect a trailing literal announcement. The session
	// has to read that many octets from the wire before the
	// command can be dispatched.
	if match := literalSuffix.FindStringSubmatch(finalReq.Payload); match != nil {

		numBytes, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("%s BAD Invalid literal length in command", finalReq.Tag)
		}

		finalReq.LiteralBytes = numBytes
	}

	return finalReq, nil
}

// ParseArguments splits a command payload into its argument
// tokens: atoms, quoted strings with backslash escapes, and
// parenthesized lists which are returned as one token with
// the parentheses kept.
func ParseArguments(payload string) ([]string, error) {

	args := make([]string, 0, 4)

	i := 0
	for i < len(payload) {

		switch {

		case payload[i] == ' ':
			i++

		case payload[i] == '"':

			var sb strings.Builder
			i++

			closed := false
			for i < len(payload) {

				if payload[i] == '\\' && (i+1) < len(payload) {
					sb.WriteByte(payload[i+1])
					i += 2
					continue
				}

				if payload[i] == '"' {
					closed = true
					i++
					break
				}

				sb.WriteByte(payload[i])
				i++
			}

			if !closed {
				return nil, fmt.Errorf("unterminated quoted string in arguments")
			}

			args = append(args, sb.String())

		case payload[i] == '(':

			depth := 0
			start := i

			for i < len(payload) {

				if payload[i] == '(' {
					depth++
				}

				if payload[i] == ')' {

					depth--
					if depth == 0 {
						i++
						break
					}
				}

				i++
			}

			if depth != 0 {
				return nil, fmt.Errorf("unbalanced parentheses in arguments")
			}

			args = append(args, payload[start:i])

		default:

			start := i
			for (i < len(payload)) && (payload[i] != ' ') {
				i++
			}

			args = append(args, payload[start:i])
		}
	}

	return args, nil
}

// ParseFlags interprets a flag list argument, with or without
// surrounding parentheses, into a flag set. Only the system
// flags are accepted.
func ParseFlags(arg string) (store.FlagSet, error) {

	arg = strings.TrimSpace(arg)
	arg = strings.TrimPrefix(arg, "(")
	arg = strings.TrimSuffix(arg, ")")

	set := store.NewFlagSet()

	for _, token := range strings.Fields(arg) {

		flag, found := systemFlags[strings.ToUpper(token)]
		if !found {
			return nil, fmt.Errorf("unknown flag '%s'", token)
		}

		set.Add(flag)
	}

	return set, nil
}

// quoteString renders text as an IMAP quoted string, escaping
// backslashes and double quotes. It is used to splice received
// literal data back into a command line for re-parsing.
func quoteString(text string) string {

	text = strings.Replace(text, "\\", "\\\\", -1)
	text = strings.Replace(text, "\"", "\\\"", -1)

	return fmt.Sprintf("\"%s\"", text)
}
