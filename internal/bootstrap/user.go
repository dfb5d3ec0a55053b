// Package bootstrap da de alta usuarios de forma interactiva desde el CLI.
package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/security/password"
)

var (
	ErrEmptyUsername = errors.New("bootstrap: username cannot be empty")
	ErrMismatch      = errors.New("bootstrap: passwords do not match")
	ErrUserExists    = errors.New("bootstrap: username already exists")
)

// Prompt pide credenciales por terminal.
// ReadSecret lee sin eco; nil usa term.ReadPassword sobre stdin.
type Prompt struct {
	In         io.Reader
	Out        io.Writer
	ReadSecret func() ([]byte, error)
}

// Credentials pide username (si viene vacío) y password con confirmación.
func (p Prompt) Credentials(username string) (string, string, error) {
	in := bufio.NewReader(p.in())
	out := p.out()

	username = strings.TrimSpace(username)
	if username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", "", err
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return "", "", ErrEmptyUsername
	}

	fmt.Fprintf(out, "Password (min %d chars): ", password.DefaultPolicy.MinLength)
	pw, err := p.secret()
	fmt.Fprintln(out)
	if err != nil {
		return "", "", err
	}
	fmt.Fprint(out, "Confirm Password: ")
	confirm, err := p.secret()
	fmt.Fprintln(out)
	if err != nil {
		return "", "", err
	}
	if string(pw) != string(confirm) {
		return "", "", ErrMismatch
	}
	return username, string(pw), nil
}

func (p Prompt) in() io.Reader {
	if p.In != nil {
		return p.In
	}
	return os.Stdin
}

func (p Prompt) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stdout
}

func (p Prompt) secret() ([]byte, error) {
	if p.ReadSecret != nil {
		return p.ReadSecret()
	}
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// CreateUser valida la política, hashea y guarda un usuario nuevo en el store del realm.
func CreateUser(ctx context.Context, st repository.Store, username, plain string, params password.Params) (*types.User, error) {
	if err := password.DefaultPolicy.Check(plain); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if _, err := st.Users().GetByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	} else if !repository.IsNotFound(err) {
		return nil, err
	}
	hash, err := password.Hash(params, plain)
	if err != nil {
		return nil, err
	}
	u := &types.User{
		ID:           uuid.NewString(),
		Realm:        st.Realm(),
		Username:     username,
		PasswordHash: hash,
		Enabled:      true,
	}
	if err := st.Users().Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
