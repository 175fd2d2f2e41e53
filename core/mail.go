package core

import "net/mail"

type (
	// EmailMessage is a plain-text notification mail. The QA workflow only
	// ever sends short confirmations, so there is no template or attachment
	// pipeline here.
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		Body    string
	}

	// EmailService delivers messages asynchronously; implementations must not
	// block the caller on network I/O.
	EmailService interface {
		SendMessages(messages ...*EmailMessage)
	}
)

func (m EmailMessage) HasRecipients() bool {
	return len(m.To) > 0 || len(m.Cc) > 0
}

func (m EmailMessage) HasContent() bool {
	return m.Body != ""
}
