package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/security/password"
	"github.com/dropDatabas3/tokencore/internal/store/memory"
)

var fast = password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func secrets(vals ...string) func() ([]byte, error) {
	i := 0
	return func() ([]byte, error) {
		v := vals[i]
		i++
		return []byte(v), nil
	}
}

func TestCredentials_ReadsUsernameAndConfirms(t *testing.T) {
	p := Prompt{In: strings.NewReader("ana\n"), Out: &bytes.Buffer{}, ReadSecret: secrets("correct-horse-1", "correct-horse-1")}
	u, pw, err := p.Credentials("")
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if u != "ana" || pw != "correct-horse-1" {
		t.Fatalf("got %q %q", u, pw)
	}
}

func TestCredentials_Mismatch(t *testing.T) {
	p := Prompt{Out: &bytes.Buffer{}, ReadSecret: secrets("correct-horse-1", "other-horse-2")}
	if _, _, err := p.Credentials("ana"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestCredentials_EmptyUsername(t *testing.T) {
	p := Prompt{In: strings.NewReader("\n"), Out: &bytes.Buffer{}}
	if _, _, err := p.Credentials(""); !errors.Is(err, ErrEmptyUsername) {
		t.Fatalf("expected empty username, got %v", err)
	}
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	st := memory.New(types.RealmBackend, nil)

	u, err := CreateUser(ctx, st, "ops", "correct-horse-1", fast)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Realm != types.RealmBackend || !u.Enabled {
		t.Fatalf("unexpected user: %+v", u)
	}
	if !password.Verify("correct-horse-1", u.PasswordHash) {
		t.Fatalf("stored hash does not verify")
	}
	if _, err := CreateUser(ctx, st, "ops", "correct-horse-2", fast); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if _, err := CreateUser(ctx, st, "weak", "short", fast); !errors.Is(err, password.ErrWeak) {
		t.Fatalf("expected ErrWeak, got %v", err)
	}
}
