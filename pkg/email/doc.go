// Package email sends transactional messages.
//
// PostmarkSender delivers through github.com/mrz1836/postmark; LogSender
// logs instead and is used when no Postmark token is configured.
// RenderReceipt builds the message sent when a subscription becomes active.
package email
