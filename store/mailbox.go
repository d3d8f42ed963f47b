package store

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"path/filepath"

	"github.com/pkg/errors"
)

// Constants

// uidStateName is the name of the per-mailbox file that
// persists the UIDVALIDITY value, the next UID counter, and
// the UID assigned to each delivery key.
const uidStateName = ".uidstate"

// StoreMode describes how a STORE operation combines the
// supplied flags with a message's current flags.
const (
	StoreReplace StoreMode = iota
	StoreAdd
	StoreRemove
)

// Structs and Types

// StoreMode is the integer value associated with one of the
// three flag update modes of the IMAP STORE command.
type StoreMode int

// Message carries the metadata of one message in a mailbox.
// Its sequence number is not stored but derived from its
// position in the mailbox's ordered index.
type Message struct {
	UID          uint32
	Key          string
	Flags        FlagSet
	Recent       bool
	Size         int64
	InternalDate time.Time
	inNew        bool
	fileName     string
}

// Mailbox owns the on-disk representation of one named
// mailbox. All structural mutations take the mailbox lock,
// so concurrent sessions sharing this mailbox observe every
// UID assignment, flag rename, and expunge as one atomic
// step.
type Mailbox struct {
	Name string

	lock        sync.Mutex
	dir         Dir
	uidValidity uint32
	uidNext     uint32
	messages    []*Message
}

// SelectSummary aggregates the counts a SELECT or STATUS
// answer reports about a mailbox.
type SelectSummary struct {
	Exists      uint32
	Recent      uint32
	Unseen      uint32
	FirstUnseen uint32
	UIDValidity uint32
	UIDNext     uint32
}

// Functions

// openMailbox reads the on-disk state of the mailbox at dir
// into a new Mailbox value. Messages present on disk but
// unknown to the persisted UID state receive fresh UIDs.
func openMailbox(name string, dir Dir) (*Mailbox, error) {

	if err := dir.Check(); err != nil {
		return nil, err
	}

	// Left-over files in tmp stem from deliveries that were
	// cut short by a crash.
	if err := dir.Clean(); err != nil {
		return nil, err
	}

	mbox := &Mailbox{
		Name: name,
		dir:  dir,
	}

	uids, err := mbox.readUIDState()
	if err != nil {
		return nil, err
	}

	// Enumerate messages already moved to cur. Their info
	// suffix carries the persisted flag set.
	curNames, err := dir.listDir("cur")
	if err != nil {
		return nil, err
	}

	for _, fileName := range curNames {

		key, info := splitName(fileName)

		flags := NewFlagSet()
		if info != "" {

			flags, err = DecodeFlags(info)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to decode flags of message '%s'", fileName)
			}
		}

		stat, err := os.Stat(filepath.Join(string(dir), "cur", fileName))
		if err != nil {
			return nil, err
		}

		mbox.messages = append(mbox.messages, &Message{
			Key:          key,
			Flags:        flags,
			Size:         stat.Size(),
			InternalDate: stat.ModTime(),
			fileName:     fileName,
		})
	}

	// Messages still in new have not been observed by any
	// session yet and therefore carry the Recent flag.
	newNames, err := dir.listDir("new")
	if err != nil {
		return nil, err
	}

	for _, fileName := range newNames {

		key, _ := splitName(fileName)

		stat, err := os.Stat(filepath.Join(string(dir), "new", fileName))
		if err != nil {
			return nil, err
		}

		mbox.messages = append(mbox.messages, &Message{
			Key:          key,
			Flags:        NewFlagSet(),
			Recent:       true,
			Size:         stat.Size(),
			InternalDate: stat.ModTime(),
			inNew:        true,
			fileName:     fileName,
		})
	}

	// Attach persisted UIDs to known keys and hand out new
	// UIDs, in delivery time order, to unknown ones.
	unknown := make([]*Message, 0, len(mbox.messages))

	for _, msg := range mbox.messages {

		if uid, found := uids[msg.Key]; found {
			msg.UID = uid
		} else {
			unknown = append(unknown, msg)
		}
	}

	sort.Slice(unknown, func(i, j int) bool {

		if !unknown[i].InternalDate.Equal(unknown[j].InternalDate) {
			return unknown[i].InternalDate.Before(unknown[j].InternalDate)
		}

		return unknown[i].Key < unknown[j].Key
	})

	for _, msg := range unknown {
		msg.UID = mbox.uidNext
		mbox.uidNext++
	}

	// The mailbox index is ordered by UID, which makes the
	// 1-based position of a message its sequence number.
	sort.Slice(mbox.messages, func(i, j int) bool {
		return mbox.messages[i].UID < mbox.messages[j].UID
	})

	if err := mbox.persistUIDState(); err != nil {
		return nil, err
	}

	return mbox, nil
}

// readUIDState loads the persisted UID assignment of this
// mailbox. A missing or unreadable state file invalidates all
// previously handed out UIDs, so a fresh UIDVALIDITY value is
// generated in that case.
func (mbox *Mailbox) readUIDState() (map[string]uint32, error) {

	uids := make(map[string]uint32)

	file, err := os.Open(filepath.Join(string(mbox.dir), uidStateName))
	if err != nil {

		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "failed to open UID state file")
		}

		mbox.uidValidity = uint32(time.Now().Unix())
		mbox.uidNext = 1

		return uids, nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	if !scanner.Scan() {

		// An empty state file is as broken as a missing one.
		mbox.uidValidity = uint32(time.Now().Unix())
		mbox.uidNext = 1

		return uids, nil
	}

	header := strings.Fields(scanner.Text())
	if len(header) != 3 || header[0] != "1" {
		return nil, fmt.Errorf("unrecognized UID state header '%s'", scanner.Text())
	}

	validity, err := strconv.ParseUint(header[1], 10, 32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse UIDVALIDITY from state file")
	}

	next, err := strconv.ParseUint(header[2], 10, 32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse next UID from state file")
	}

	mbox.uidValidity = uint32(validity)
	mbox.uidNext = uint32(next)

	for scanner.Scan() {

		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}

		uid, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}

		uids[fields[1]] = uint32(uid)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read UID state file")
	}

	return uids, nil
}

// persistUIDState writes the current UID assignment to a
// temporary file and renames it over the previous state, so
// readers never observe a partially written counter.
func (mbox *Mailbox) persistUIDState() error {

	tmpPath := filepath.Join(string(mbox.dir), (uidStateName + ".tmp"))

	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, "failed to create temporary UID state file")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "1 %s %s\n", uidString(mbox.uidValidity), uidString(mbox.uidNext))

	for _, msg := range mbox.messages {
		fmt.Fprintf(&b, "%s %s\n", uidString(msg.UID), msg.Key)
	}

	if _, err := file.WriteString(b.String()); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write UID state")
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to sync UID state")
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close UID state file")
	}

	err = os.Rename(tmpPath, filepath.Join(string(mbox.dir), uidStateName))
	if err != nil {
		return errors.Wrap(err, "failed to rename UID state file into place")
	}

	return nil
}

// Select computes the counts reported in a SELECT or EXAMINE
// answer. Unless readOnly is set, all messages still residing
// in new are moved into cur, consuming their Recent flag: the
// invoking session is the one that reports them as recent, and
// no later session will.
func (mbox *Mailbox) Select(readOnly bool) (SelectSummary, error) {

	mbox.lock.Lock()
	defer mbox.lock.Unlock()

	summary := mbox.summarize()

	if readOnly {
		return summary, nil
	}

	for _, msg := range mbox.messages {

		if !msg.inNew {
			msg.Recent = false
			continue
		}

		newName := fmt.Sprintf("%s%c%s", msg.Key, separator, EncodeFlags(msg.Flags))

		err := os.Rename(filepath.Join(string(mbox.dir), "new", msg.fileName), filepath.Join(string(mbox.dir), "cur", newName))
		if err != nil {
			return SelectSummary{}, errors.Wrapf(err, "failed to move message '%s' from new to cur", msg.fileName)
		}

		// This select reported the message as recent, no
		// later one will.
		msg.Recent = false
		msg.inNew = false
		msg.fileName = newName
	}

	return summary, nil
}

// Summary returns the current counts without altering any
// message state, as needed by the STATUS command.
func (mbox *Mailbox) Summary() SelectSummary {

	mbox.lock.Lock()
	defer mbox.lock.Unlock()

	return mbox.summarize()
}

// summarize computes the counts of the mailbox. Callers must
// hold the mailbox lock.
func (mbox *Mailbox) summarize() SelectSummary {

	summary := SelectSummary{
		Exists:      uint32(len(mbox.messages)),
		UIDValidity: mbox.uidValidity,
		UIDNext:     mbox.uidNext,
	}

	for i, msg := range mbox.messages {

		if msg.Recent {
			summary.Recent++
		}

		if !msg.Flags.Has(FlagSeen) {

			summary.Unseen++

			if summary.FirstUnseen == 0 {
				summary.FirstUnseen = uint32(i + 1)
			}
		}
	}

	return summary
}

// Deliver writes content as a new message into this mailbox.
// The message is staged in tmp, renamed atomically into new,
// and only then assigned the next UID. A crash anywhere in
// between leaves either no message or a complete one.
func (mbox *Mailbox) Deliver(content []byte) (*Message, error) {

	mbox.lock.Lock()
	defer mbox.lock.Unlock()

	delivery, err := mbox.dir.NewDelivery()
	if err != nil {
		return nil, err
	}

	if err := delivery.Write(content); err != nil {
		delivery.Abort()
		return nil, err
	}

	key, err := delivery.Close()
	if err != nil {
		return nil, err
	}

	msg := &Message{
		UID:          mbox.uidNext,
		Key:          key,
		Flags:        NewFlagSet(),
		Recent:       true,
		Size:         int64(len(content)),
		InternalDate: time.Now(),
		inNew:        true,
		fileName:     key,
	}

	mbox.uidNext++
	mbox.messages = append(mbox.messages, msg)

	if err := mbox.persistUIDState(); err != nil {
		return nil, err
	}

	// Hand out a snapshot, the indexed message keeps changing
	// under concurrent flag updates.
	snapshot := *msg
	snapshot.Flags = msg.Flags.Copy()

	return &snapshot, nil
}

// Count returns the number of messages in the mailbox.
func (mbox *Mailbox) Count() uint32 {

	mbox.lock.Lock()
	defer mbox.lock.Unlock()

	return uint32(len(mbox.messages))
}

// BySeq returns a snapshot of the message at the supplied
// 1-based sequence number, or nil if no such message exists.
func (mbox *Mailbox) BySeq(seq uint32) *Message {

	mbox.lock.Lock()
	defer mbox.lock.Unlock()

	if (seq < 1) || (seq > uint32(len(mbox.messages))) {
		return nil
	}

	snapshot := *mbox.messages[(seq - 1)]
	snapshot.Flags = mbox.messages[(seq-1)].Flags.Copy()

	return &snapshot
}

// SeqOfUID translates a UID into the current sequence number
// of the message carrying it.
func (mbox *Mailbox) SeqOfUID(uid uint32) (uint32, bool) {

	mbox.lock.Lock()
	defer mbox.lock.Unlock()

	for i, msg := range mbox.messages {

		if msg.UID == uid {
			return uint32(i + 1), true
		}
	}

	return 0, false
}

// UIDs returns the UIDs of all messages in sequence order.
func (mbox *Mailbox) UIDs() []uint32 {

	mbox.lock.Lock()
	defer mbox.lock.Unlock()

	uids := make([]uint32, len(mbox.messages))
	for i, msg := range mbox.messages {
		uids[i] = msg.UID
	}

	return uids
}

// Content returns the raw bytes of the message at the
// supplied sequence number. The read happens under the
// mailbox lock: flag updates rename the message file, so the
// resolved path is only valid while no rename can interleave.
func (mbox *Mailbox) Content(seq uint32) ([]byte, error) {

	mbox.lock.Lock()
	defer mbox.lock.Unlock()

	if (seq < 1) || (seq > uint32(len(mbox.messages))) {
		return nil, fmt.Errorf("no message with sequence number %d", seq)
	}

	msg := mbox.messages[(seq - 1)]

	sub := "cur"
	if msg.inNew {
		sub = "new"
	}

	return os.ReadFile(filepath.Join(string(mbox.dir), sub, msg.fileName))
}

// StoreFlags applies a flag update to the message at the
// supplied sequence number. The new flag set is computed from
// the message's current flags under the mailbox lock and made
// visible through one atomic rename, so no concurrent write
// to non-overlapping flags is ever lost.
func (mbox *Mailbox) StoreFlags(seq uint32, mode StoreMode, flags FlagSet) (*Message, error) {

	mbox.lock.Lock()
	defer mbox.lock.Unlock()

	if (seq < 1) || (seq > uint32(len(mbox.messages))) {
		return nil, fmt.Errorf("no message with sequence number %d", seq)
	}

	msg := mbox.messages[(seq - 1)]

	updated := msg.Flags.Copy()

	switch mode {

	case StoreReplace:
		updated = flags.Copy()

	case StoreAdd:
		for flag := range flags {
			updated.Add(flag)
		}

	case StoreRemove:
		for flag := range flags {
			updated.Remove(flag)
		}
	}

	// The Recent flag lives in the directory layout, not in
	// the info suffix, and cannot be stored explicitly.
	updated.Remove(FlagRecent)

	newName := fmt.Sprintf("%s%c%s", msg.Key, separator, EncodeFlags(updated))

	if newName != msg.fileName || msg.inNew {

		sub := "cur"
		if msg.inNew {
			sub = "new"
		}

		err := os.Rename(filepath.Join(string(mbox.dir), sub, msg.fileName), filepath.Join(string(mbox.dir), "cur", newName))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to rename message '%s' for flag update", msg.fileName)
		}

		msg.inNew = false
		msg.fileName = newName
	}

	msg.Flags = updated

	snapshot := *msg
	snapshot.Flags = msg.Flags.Copy()

	return &snapshot, nil
}

// Expunge permanently removes every message flagged Deleted,
// renumbers the survivors into a dense 1..N sequence, and
// returns the pre-removal sequence numbers of the removed
// messages in descending order, so observers can apply them
// one by one without sequence numbers drifting mid-batch.
func (mbox *Mailbox) Expunge() ([]uint32, error) {

	mbox.lock.Lock()
	defer mbox.lock.Unlock()

	removed := make([]uint32, 0, len(mbox.messages))
	survivors := make([]*Message, 0, len(mbox.messages))

	for i, msg := range mbox.messages {

		if !msg.Flags.Has(FlagDeleted) {
			survivors = append(survivors, msg)
			continue
		}

		sub := "cur"
		if msg.inNew {
			sub = "new"
		}

		err := os.Remove(filepath.Join(string(mbox.dir), sub, msg.fileName))
		if err != nil && !os.IsNotExist(err) {

			// Commit the removals performed so far, so the
			// index never lists a message whose file is gone.
			// The failed message and everything after it stay
			// in place.
			mbox.messages = append(survivors, mbox.messages[i:]...)

			if perr := mbox.persistUIDState(); perr != nil {
				return nil, perr
			}

			return nil, errors.Wrapf(err, "failed to remove expunged message '%s'", msg.fileName)
		}

		removed = append(removed, uint32(i+1))
	}

	mbox.messages = survivors

	// Emit in descending pre-removal sequence order.
	sort.Slice(removed, func(i, j int) bool { return removed[i] > removed[j] })

	if len(removed) > 0 {

		if err := mbox.persistUIDState(); err != nil {
			return nil, err
		}
	}

	return removed, nil
}
