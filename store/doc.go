/*
Package store implements the Maildir-backed mailbox storage layer shared by
petrel's IMAP and LMTP front ends.

Each mailbox is one directory with tmp, new, and cur subdirectories. A message
is one file whose name carries a unique delivery key and, once the message has
moved to cur, an info suffix encoding its flags. All state transitions of a
message (delivery, flag changes) are expressed as atomic renames, never as
in-place edits, so a crash mid-operation leaves either the old state or the
new state visible but nothing in between.

Structural operations on one mailbox (UID assignment, flag renames, expunge)
are serialized by a per-mailbox lock. The Store hands out exactly one Mailbox
value per directory process-wide, so concurrent sessions against the same
mailbox always contend on the same lock.
*/
package store
