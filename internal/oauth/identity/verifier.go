// Package identity resuelve y verifica principals (usuarios y visitantes) de un realm.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/security/password"
)

var (
	// ErrInvalidCredentials cubre usuario inexistente y password incorrecto.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrAccountLocked indica cuenta deshabilitada (sólo tras password correcto).
	ErrAccountLocked = errors.New("identity: account is locked")
	// ErrVisitorNotAllowed: el realm no admite visitantes.
	ErrVisitorNotAllowed = errors.New("identity: visitors not allowed in this realm")
)

// VisitorBootstrap es el par username/password que acuña visitantes en el realm frontend.
type VisitorBootstrap struct {
	Enabled  bool
	Username string
	Password string
}

// Verifier resuelve principals de un realm.
type Verifier struct {
	realm    types.Realm
	users    repository.UserRepository
	visitor  VisitorBootstrap
	sessions *VisitorSessions
}

// New crea un Verifier. Visitantes sólo existen en frontend.
func New(realm types.Realm, users repository.UserRepository, visitor VisitorBootstrap, sessions *VisitorSessions) (*Verifier, error) {
	if visitor.Enabled {
		if realm != types.RealmFrontend {
			return nil, ErrVisitorNotAllowed
		}
		if sessions == nil || visitor.Username == "" || visitor.Password == "" {
			return nil, errors.New("identity: visitor bootstrap requires credentials and a session store")
		}
	}
	return &Verifier{realm: realm, users: users, visitor: visitor, sessions: sessions}, nil
}

// Realm del verifier.
func (v *Verifier) Realm() types.Realm { return v.realm }

// IsVisitorBootstrap compara en tiempo constante contra el par configurado.
func (v *Verifier) IsVisitorBootstrap(username, pass string) bool {
	if !v.visitor.Enabled {
		return false
	}
	u := subtle.ConstantTimeCompare([]byte(username), []byte(v.visitor.Username))
	p := subtle.ConstantTimeCompare([]byte(pass), []byte(v.visitor.Password))
	return u&p == 1
}

// Authenticate verifica credenciales. El par bootstrap de visitante acuña un visitante nuevo.
func (v *Verifier) Authenticate(ctx context.Context, username, pass string) (types.PrincipalRef, error) {
	if v.IsVisitorBootstrap(username, pass) {
		return v.sessions.Start(ctx)
	}
	if username == "" || pass == "" {
		return types.PrincipalRef{}, ErrInvalidCredentials
	}

	u, err := v.users.GetByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			// igualar el costo de la rama "usuario existe"
			password.Verify(pass, dummyHash())
			return types.PrincipalRef{}, ErrInvalidCredentials
		}
		return types.PrincipalRef{}, err
	}
	if !password.Verify(pass, u.PasswordHash) {
		return types.PrincipalRef{}, ErrInvalidCredentials
	}
	if !u.Enabled {
		return types.PrincipalRef{}, ErrAccountLocked
	}
	return types.UserRef(u.ID), nil
}

// ResolveUser busca un usuario registrado por username (sin verificar password).
func (v *Verifier) ResolveUser(ctx context.Context, username string) (*types.User, error) {
	return v.users.GetByUsername(ctx, username)
}

// PrincipalEnabled re-evalúa el estado del principal. La referencia vacía (client_credentials)
// siempre está habilitada.
func (v *Verifier) PrincipalEnabled(ctx context.Context, ref types.PrincipalRef) (bool, error) {
	switch ref.Kind() {
	case types.PrincipalNone:
		return true, nil
	case types.PrincipalUser:
		u, err := v.users.GetByID(ctx, ref.ID())
		if err != nil {
			if repository.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return u.Enabled, nil
	case types.PrincipalVisitor:
		if v.sessions == nil {
			return false, nil
		}
		return v.sessions.Active(ctx, ref.ID())
	default:
		return false, nil
	}
}

// EndVisitor cierra la sesión del visitante, si el realm las tiene.
func (v *Verifier) EndVisitor(ctx context.Context, ref types.PrincipalRef) error {
	if !ref.IsVisitor() || v.sessions == nil {
		return nil
	}
	return v.sessions.End(ctx, ref.ID())
}

var (
	dummyOnce sync.Once
	dummyPHC  string
)

func dummyHash() string {
	dummyOnce.Do(func() {
		dummyPHC, _ = password.Hash(password.Default, "tokencore-dummy-password")
	})
	return dummyPHC
}
