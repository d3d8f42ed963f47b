package store

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"path/filepath"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Structs

// Store is the root of all mailbox storage of a petrel
// instance. It hands out exactly one Mailbox value per
// mailbox directory, so every session working on the same
// mailbox shares the same lock and message index.
type Store struct {
	logger log.Logger
	root   string
	sep    string

	lock sync.Mutex
	open map[string]*Mailbox
}

// ListEntry describes one mailbox in a LIST or LSUB answer.
type ListEntry struct {
	Name       string
	Attributes []string
}

// Functions

// NewStore prepares a store rooted at the supplied directory.
// Each user owns one subdirectory which doubles as the user's
// INBOX; further mailboxes are nested below it.
func NewStore(logger log.Logger, root string, hierarchySep string) (*Store, error) {

	if err := os.MkdirAll(root, (os.ModeDir | createMode)); err != nil {
		return nil, fmt.Errorf("failed to create maildir root at '%s': %v", root, err)
	}

	return &Store{
		logger: logger,
		root:   root,
		sep:    hierarchySep,
		open:   make(map[string]*Mailbox),
	}, nil
}

// NormalizeMailboxName canonicalizes a client-supplied
// mailbox name. INBOX is matched case-insensitively per
// RFC 3501.
func NormalizeMailboxName(name string) string {

	name = strings.Trim(name, "\"")

	if strings.ToUpper(name) == "INBOX" {
		return "INBOX"
	}

	return name
}

// Separator returns the configured hierarchy separator.
func (s *Store) Separator() string {
	return s.sep
}

// mailboxPath translates a mailbox name into its directory,
// mapping the configured hierarchy separator onto nested
// directories. Names trying to escape the user's maildir are
// rejected.
func (s *Store) mailboxPath(user string, name string) (string, error) {

	userDir := filepath.Join(s.root, user)

	if name == "INBOX" {
		return userDir, nil
	}

	segments := strings.Split(name, s.sep)

	for _, segment := range segments {

		if (segment == "") || (segment == ".") || (segment == "..") || strings.ContainsRune(segment, filepath.Separator) {
			return "", fmt.Errorf("invalid mailbox name '%s'", name)
		}
	}

	return filepath.Join(userDir, filepath.Join(segments...)), nil
}

// EnsureUser creates the INBOX maildir of the supplied user
// if it does not exist yet.
func (s *Store) EnsureUser(user string) error {
	return Dir(filepath.Join(s.root, user)).Create()
}

// MailboxExists reports whether the named mailbox of the
// supplied user is present as a conformant maildir.
func (s *Store) MailboxExists(user string, name string) bool {

	path, err := s.mailboxPath(user, NormalizeMailboxName(name))
	if err != nil {
		return false
	}

	return Dir(path).Check() == nil
}

// OpenMailbox returns the shared Mailbox value for the named
// mailbox, scanning it from disk on first open.
func (s *Store) OpenMailbox(user string, name string) (*Mailbox, error) {

	name = NormalizeMailboxName(name)

	path, err := s.mailboxPath(user, name)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s\x00%s", user, name)

	s.lock.Lock()
	defer s.lock.Unlock()

	if mbox, found := s.open[key]; found {
		return mbox, nil
	}

	mbox, err := openMailbox(name, Dir(path))
	if err != nil {
		return nil, err
	}

	s.open[key] = mbox

	level.Debug(s.logger).Log(
		"msg", "opened mailbox",
		"user", user,
		"mailbox", name,
	)

	return mbox, nil
}

// CreateMailbox creates a new mailbox for the supplied user.
// INBOX always exists and cannot be created explicitly.
func (s *Store) CreateMailbox(user string, name string) error {

	name = NormalizeMailboxName(name)

	if name == "INBOX" {
		return fmt.Errorf("new mailbox cannot be named INBOX")
	}

	path, err := s.mailboxPath(user, name)
	if err != nil {
		return err
	}

	if Dir(path).Check() == nil {
		return fmt.Errorf("mailbox '%s' exists already", name)
	}

	return Dir(path).Create()
}

// DeleteMailbox removes a mailbox with all contained messages
// from stable storage. Deleting INBOX is forbidden.
func (s *Store) DeleteMailbox(user string, name string) error {

	name = NormalizeMailboxName(name)

	if name == "INBOX" {
		return fmt.Errorf("forbidden to delete INBOX")
	}

	path, err := s.mailboxPath(user, name)
	if err != nil {
		return err
	}

	if Dir(path).Check() != nil {
		return fmt.Errorf("mailbox '%s' does not exist", name)
	}

	s.lock.Lock()
	delete(s.open, fmt.Sprintf("%s\x00%s", user, name))
	s.lock.Unlock()

	return Dir(path).Remove()
}

// StatusMailbox returns the counts of the named mailbox
// without selecting it and without consuming Recent flags.
func (s *Store) StatusMailbox(user string, name string) (SelectSummary, error) {

	mbox, err := s.OpenMailbox(user, name)
	if err != nil {
		return SelectSummary{}, err
	}

	return mbox.Summary(), nil
}

// patternToRegexp compiles an IMAP mailbox glob into an
// anchored regular expression: '*' matches any part of a name
// including the hierarchy separator, '%' stops at separators.
func (s *Store) patternToRegexp(reference string, pattern string) (*regexp.Regexp, error) {

	combined := reference + pattern

	quoted := regexp.QuoteMeta(combined)
	quoted = strings.Replace(quoted, `\*`, ".*", -1)
	quoted = strings.Replace(quoted, "%", fmt.Sprintf("[^%s]*", regexp.QuoteMeta(s.sep)), -1)

	return regexp.Compile(fmt.Sprintf("^%s$", quoted))
}

// ListMailboxes enumerates the mailbox names of the supplied
// user matching the reference and pattern glob, in sorted
// order. Directories that are no conformant maildirs are
// reported as \Noselect so clients can still descend into
// their children.
func (s *Store) ListMailboxes(user string, reference string, pattern string) ([]ListEntry, error) {

	re, err := s.patternToRegexp(strings.Trim(reference, "\""), strings.Trim(pattern, "\""))
	if err != nil {
		return nil, err
	}

	userDir := filepath.Join(s.root, user)

	entries := make([]ListEntry, 0, 8)

	err = filepath.Walk(userDir, func(path string, info os.FileInfo, err error) error {

		if err != nil || !info.IsDir() {
			return nil
		}

		base := filepath.Base(path)
		if (base == "tmp") || (base == "new") || (base == "cur") {
			return filepath.SkipDir
		}
		if strings.HasPrefix(base, ".") && (path != userDir) {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(userDir, path)
		if err != nil {
			return nil
		}

		name := "INBOX"
		if rel != "." {
			name = strings.Join(strings.Split(rel, string(filepath.Separator)), s.sep)
		}

		if !re.MatchString(name) {
			return nil
		}

		entries = append(entries, ListEntry{
			Name:       name,
			Attributes: s.listAttributes(path),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}

// listAttributes determines the name attributes of one listed
// mailbox directory.
func (s *Store) listAttributes(path string) []string {

	attrs := make([]string, 0, 2)

	if Dir(path).Check() != nil {
		attrs = append(attrs, "\\Noselect")
	} else {

		newNames, err := Dir(path).listDir("new")
		if (err == nil) && (len(newNames) > 0) {
			attrs = append(attrs, "\\Marked")
		} else {
			attrs = append(attrs, "\\Unmarked")
		}
	}

	children := false

	subdirs, err := os.ReadDir(path)
	if err == nil {

		for _, sub := range subdirs {

			if !sub.IsDir() {
				continue
			}

			name := sub.Name()
			if (name == "tmp") || (name == "new") || (name == "cur") || strings.HasPrefix(name, ".") {
				continue
			}

			children = true
			break
		}
	}

	if children {
		attrs = append(attrs, "\\HasChildren")
	} else {
		attrs = append(attrs, "\\HasNoChildren")
	}

	return attrs
}
