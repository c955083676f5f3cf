package ops

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net/mail"
	"strings"
)

// EmailSender writes the From header of email.txt to email-sender.txt.
func (h *Handlers) EmailSender(ctx context.Context) (string, error) {
	data, err := h.readFile("email.txt")
	if err != nil {
		return "", err
	}

	sender, err := parseSender(data)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := h.writeFile("email-sender.txt", []byte(sender)); err != nil {
		return "", err
	}
	return "Extracted email sender.", nil
}

// parseSender returns the raw From value. Messages that net/mail cannot
// parse are scanned for the first "From: " line instead.
func parseSender(data []byte) (string, error) {
	if msg, err := mail.ReadMessage(bytes.NewReader(data)); err == nil {
		if from := strings.TrimSpace(msg.Header.Get("From")); from != "" {
			return from, nil
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "From: "); i >= 0 {
			if from := strings.TrimSpace(line[i+len("From: "):]); from != "" {
				return from, nil
			}
		}
	}
	return "", errors.New("email.txt: no From header")
}
