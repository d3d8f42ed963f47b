/*
Package lmtp implements petrel's final-hop delivery front end speaking LMTP
per RFC 2033. Recipients are validated at RCPT time against the mailbox
store, and after DATA each accepted recipient receives an independent status
line in declaration order. Every accepted recipient results in exactly one
atomic Maildir delivery; one recipient's failure never aborts its siblings.
*/
package lmtp
