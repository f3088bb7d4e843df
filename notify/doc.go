// Package notify delivers user email and operator alerts.
//
// [SMTPNotifier] renders text and HTML templates and sends them with
// go-mail. [LogNotifier] writes the same notifications to a zap logger.
// Both satisfy authshield.Notifier and monitor.AlertNotifier.
package notify
