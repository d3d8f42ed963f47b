package store

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"path/filepath"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// Constants

// createMode holds the permissions used when creating
// mailbox directories.
const createMode = 0700

// separator separates a message's unique delivery key from
// its info suffix in the file name. Only change this on
// operating systems where the colon is not allowed in
// file names.
const separator = ':'

// Structs and Types

// A Dir represents one mailbox directory in Maildir layout.
type Dir string

// Delivery represents an in-progress message delivery into a
// mailbox. The message is written to a uniquely-named file in
// tmp and becomes visible only when Close renames it into new,
// which is the sole atomicity boundary of a delivery.
type Delivery struct {
	file *os.File
	dir  Dir
	key  string
}

// Functions

// newKey generates a unique delivery key made up of the
// current UNIX timestamp, the host name, and a random UUID,
// so that concurrent deliveries from independent processes
// never collide.
func newKey() (string, error) {

	host, err := os.Hostname()
	if err != nil {
		return "", errors.Wrap(err, "failed to determine host name for delivery key")
	}

	// Escape characters that carry meaning in Maildir
	// file names.
	host = strings.Replace(host, "/", "\\057", -1)
	host = strings.Replace(host, string(separator), "\\072", -1)

	id := uuid.NewV4()

	return fmt.Sprintf("%d.%s.%s", time.Now().Unix(), id.String(), host), nil
}

// splitName separates a message file name into its delivery
// key and its info suffix. Files in new carry no suffix.
func splitName(name string) (key string, info string) {

	idx := strings.IndexRune(name, separator)
	if idx < 0 {
		return name, ""
	}

	return name[:idx], name[(idx + 1):]
}

// Create creates the directory structure of a Maildir. It is
// safe to call on an already existing mailbox.
func (d Dir) Create() error {

	for _, sub := range []string{"", "tmp", "new", "cur"} {

		err := os.MkdirAll(filepath.Join(string(d), sub), (os.ModeDir | createMode))
		if err != nil {
			return errors.Wrapf(err, "failed to create Maildir part '%s'", sub)
		}
	}

	return nil
}

// Check verifies that the supplied directory conforms to the
// Maildir layout. It does not change anything on disk.
func (d Dir) Check() error {

	for _, sub := range []string{"", "tmp", "new", "cur"} {

		info, err := os.Stat(filepath.Join(string(d), sub))
		if err != nil {
			return err
		}

		if !info.IsDir() {
			return fmt.Errorf("'%s' in mailbox folder is not a directory", sub)
		}
	}

	return nil
}

// Remove deletes an entire Maildir from stable storage.
func (d Dir) Remove() error {
	return os.RemoveAll(string(d))
}

// NewDelivery opens a new delivery into this mailbox by
// creating a uniquely-named file in its tmp directory.
func (d Dir) NewDelivery() (*Delivery, error) {

	key, err := newKey()
	if err != nil {
		return nil, err
	}

	file, err := os.Create(filepath.Join(string(d), "tmp", key))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create message file in tmp")
	}

	return &Delivery{
		file: file,
		dir:  d,
		key:  key,
	}, nil
}

// Write appends the supplied bytes to the message file and
// syncs them to stable storage.
func (del *Delivery) Write(p []byte) error {

	if _, err := del.file.Write(p); err != nil {
		return errors.Wrap(err, "failed to write message content during delivery")
	}

	if err := del.file.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync message content during delivery")
	}

	return nil
}

// Close finishes the delivery by renaming the message file
// from tmp into new. A crash before the rename leaves no
// visible message, a crash after leaves a complete one.
func (del *Delivery) Close() (string, error) {

	if err := del.file.Close(); err != nil {
		return "", errors.Wrap(err, "failed to close message file during delivery")
	}

	err := os.Rename(filepath.Join(string(del.dir), "tmp", del.key), filepath.Join(string(del.dir), "new", del.key))
	if err != nil {
		return "", errors.Wrap(err, "failed to rename delivered message from tmp to new")
	}

	return del.key, nil
}

// Abort cancels the delivery and removes the partial file
// from tmp.
func (del *Delivery) Abort() error {

	if err := del.file.Close(); err != nil {
		return err
	}

	return os.Remove(filepath.Join(string(del.dir), "tmp", del.key))
}

// Clean removes files from tmp whose last modification lies
// more than 36 hours in the past. Such files are left-overs
// of deliveries that were aborted by a crash.
func (d Dir) Clean() error {

	dir, err := os.Open(filepath.Join(string(d), "tmp"))
	if err != nil {
		return err
	}
	defer dir.Close()

	names, err := dir.Readdirnames(0)
	if err != nil {
		return err
	}

	now := time.Now()

	for _, name := range names {

		info, err := os.Stat(filepath.Join(string(d), "tmp", name))
		if err != nil {
			continue
		}

		if now.Sub(info.ModTime()).Hours() > 36 {

			err = os.Remove(filepath.Join(string(d), "tmp", name))
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// listDir returns the non-hidden file names in one
// subdirectory of the mailbox.
func (d Dir) listDir(sub string) ([]string, error) {

	dir, err := os.Open(filepath.Join(string(d), sub))
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	names, err := dir.Readdirnames(0)
	if err != nil {
		return nil, err
	}

	visible := make([]string, 0, len(names))
	for _, name := range names {

		if name[0] != '.' {
			visible = append(visible, name)
		}
	}

	return visible, nil
}

// uidString formats a UID for the persisted counter file.
func uidString(uid uint32) string {
	return strconv.FormatUint(uint64(uid), 10)
}
