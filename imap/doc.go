/*
Package imap implements petrel's IMAP4rev1 subset: the request parser with
literal continuation, the per-connection session state machine, and the
command handlers split by the state they require. Handlers are dispatched
through the Service interface so that the logging and metrics middlewares
observe every executed command.
*/
package imap
