/*
Package auth defines the mechanisms to determine whether user credentials
supplied via an IMAP LOGIN can be found in a configured user information
system. Petrel ships an authenticator reading a separator-delimited users
file and one backed by a users table in a PostgreSQL database.
*/
package auth
