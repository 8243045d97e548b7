package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"assetflow/internal/confirm"
)

// terminalPrompter answers metered download confirmations from the command
// line. Answers reach the gate through Approve or Decline.
type terminalPrompter struct {
	gate        *confirm.Gate
	autoApprove bool
	interactive bool
	remote      bool
	in          io.Reader
	out         io.Writer
	before      func()
}

func (p *terminalPrompter) Prompt(_ context.Context, prompt confirm.Prompt) error {
	if p.before != nil {
		p.before()
	}
	switch {
	case p.autoApprove:
		fmt.Fprintf(p.out, "Downloading %s MB over a metered connection\n", prompt.MB)
		p.gate.Approve()
		return nil
	case p.interactive:
		fmt.Fprintf(p.out, "Download %s MB over a metered connection? [y/N] ", prompt.MB)
		go func() {
			if readYes(p.in) {
				p.gate.Approve()
				return
			}
			p.gate.Decline()
		}()
		return nil
	case p.remote:
		fmt.Fprintf(p.out, "Waiting for approval of %s MB through the status API\n", prompt.MB)
		return nil
	default:
		return errors.New("no terminal to confirm a metered download; rerun with --yes or --listen")
	}
}

func readYes(in io.Reader) bool {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
