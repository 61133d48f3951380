// Package server implements the HTTP front of the mail spool. Producers
// POST payloads to "/", which are stored as new spool items; consumers
// browse and fetch them under "/mails/" behind the access gate. The
// package wires routes, middleware, metrics and health checks around a
// spool.Store and provides lifecycle helpers used by tests and the
// production binary.
package server
