// Package logging provides structured logging utilities for coachcontacts.
//
// Every package logs through log/slog. This package centralises the attribute
// names and the handler setup so that log lines from the credential store, the
// sheet backend and the HTTP layer can be correlated.
//
// # Usage Patterns
//
//	logger := logging.WithTenant(slog.Default(), coachID)
//	logger.Info("contact added",
//	    logging.ContactID(c.ID),
//	    logging.Status(logging.StatusSuccess))
//
// Session ids and emails are bearer secrets or PII. Log them only through
// SessionHash and UserHash:
//
//	logger.Warn("session refresh failed", logging.SessionHash(sessionID), logging.Err(err))
package logging
