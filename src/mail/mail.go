// Package mail delivers failure alerts through the system mail(1) command.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type sendFunc func(ctx context.Context, recipients []string, subject, body string) error

var send sendFunc = runMail

// Send submits a message to the given recipients. Delivery is delegated
// entirely to the local mail setup; a non-zero exit from mail(1) is returned
// as an error.
func Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return nil
	}
	return send(ctx, recipients, subject, body)
}

func runMail(ctx context.Context, recipients []string, subject, body string) error {
	args := append([]string{"-s", subject}, recipients...)
	cmd := exec.CommandContext(ctx, "mail", args...)
	cmd.Stdin = strings.NewReader(body)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("mail: send to %s: %w: %s", strings.Join(recipients, ","), err, s)
		}
		return fmt.Errorf("mail: send to %s: %w", strings.Join(recipients, ","), err)
	}
	return nil
}

// SetSendForTest replaces the mail subprocess runner.
func SetSendForTest(fn sendFunc) func() {
	prev := send
	send = fn
	return func() { send = prev }
}
