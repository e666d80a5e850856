package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/dacid44/d4ft4/internal/d4ferr"
)

// promptPassword interactively reads a password from the controlling
// terminal with input hidden, without confirmation — unlike a
// credential-creation flow, a d4ft password is agreed on out of band
// and entered once per side.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", d4ferr.Wrap(d4ferr.KindSocketError, err)
	}
	if len(pwBytes) == 0 {
		return "", d4ferr.New(d4ferr.KindMalformedMessage, "password cannot be empty")
	}
	return string(pwBytes), nil
}
