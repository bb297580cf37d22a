package crypto

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// PassphraseSource lazily resolves a keystore passphrase from an environment
// variable or by prompting the operator. The first result is cached.
type PassphraseSource struct {
	envVar string

	once  sync.Once
	value string
	err   error
}

// NewPassphraseSource checks envVar before prompting on the terminal.
func NewPassphraseSource(envVar string) *PassphraseSource {
	return &PassphraseSource{envVar: strings.TrimSpace(envVar)}
}

// Get returns the passphrase. Whitespace-only values are rejected.
func (s *PassphraseSource) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			if s.envVar != "" {
				s.err = fmt.Errorf("signer keystore passphrase required; set %s or run interactively", s.envVar)
			} else {
				s.err = errors.New("signer keystore passphrase required and no terminal available")
			}
			return
		}
		fmt.Fprint(os.Stderr, "Enter signer keystore passphrase: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			s.err = fmt.Errorf("failed to read passphrase: %w", err)
			return
		}
		if strings.TrimSpace(string(raw)) == "" {
			s.err = errors.New("signer keystore passphrase cannot be empty")
			return
		}
		s.value = string(raw)
	})
	return s.value, s.err
}
