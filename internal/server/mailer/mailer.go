// Package mailer delivers account emails (verification codes, reset codes,
// confirmations) over SMTP, through an AMQP outbox, or to the log.
package mailer

import "errors"

// Message is one outgoing email. It is also the AMQP payload.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ErrNoRecipient is returned when Send is called without an address.
var ErrNoRecipient = errors.New("mail recipient is empty")
