// Package monitor scans the authshield security event log for credential
// attack patterns and raises alerts.
//
// A [Monitor] runs six independent detectors over a trailing window of
// events (brute force, credential stuffing, password spraying, account
// enumeration, rapid registration and token abuse), records each detected
// pattern back into the log as a suspicious_activity event, and evaluates
// configurable count thresholds per event type. Every pattern and every
// tripped threshold becomes an [Alert]. Alerts are deduplicated only by
// their generated id, so overlapping windows may raise repeated alerts for
// the same activity.
package monitor
