package types

import (
	"errors"
	"fmt"
)

// PrincipalKind discrimina PrincipalRef.
type PrincipalKind uint8

const (
	// PrincipalNone: token emitido sin usuario (client_credentials).
	PrincipalNone PrincipalKind = iota
	PrincipalUser
	PrincipalVisitor
)

const visitorSubjectPrefix = "visitor:"

var errBadPrincipal = errors.New("invalid principal reference")

func (k PrincipalKind) String() string {
	switch k {
	case PrincipalUser:
		return "user"
	case PrincipalVisitor:
		return "visitor"
	default:
		return ""
	}
}

// PrincipalRef es User(id) | Visitor(sessionID) | ninguno. El tipo se decide al
// emitir el token y viaja en las claims; nunca se infiere del formato de sub.
type PrincipalRef struct {
	kind PrincipalKind
	id   string
}

// UserRef referencia un usuario registrado.
func UserRef(id string) PrincipalRef { return PrincipalRef{kind: PrincipalUser, id: id} }

// VisitorRef referencia una sesión anónima del realm frontend.
func VisitorRef(sessionID string) PrincipalRef {
	return PrincipalRef{kind: PrincipalVisitor, id: sessionID}
}

func (p PrincipalRef) Kind() PrincipalKind { return p.kind }
func (p PrincipalRef) ID() string          { return p.id }
func (p PrincipalRef) IsZero() bool        { return p.kind == PrincipalNone }
func (p PrincipalRef) IsUser() bool        { return p.kind == PrincipalUser }
func (p PrincipalRef) IsVisitor() bool     { return p.kind == PrincipalVisitor }

// Subject es el valor de la claim sub: el id de usuario o "visitor:<id>".
func (p PrincipalRef) Subject() string {
	switch p.kind {
	case PrincipalUser:
		return p.id
	case PrincipalVisitor:
		return visitorSubjectPrefix + p.id
	default:
		return ""
	}
}

// String es la forma usada en logs: "user:42", "visitor:<id>", "none".
func (p PrincipalRef) String() string {
	if p.kind == PrincipalNone {
		return "none"
	}
	return p.kind.String() + ":" + p.id
}

// ParsePrincipal reconstruye la referencia desde (tipo, id) persistidos o de claims.
func ParsePrincipal(kind, id string) (PrincipalRef, error) {
	switch kind {
	case "":
		if id != "" {
			return PrincipalRef{}, errBadPrincipal
		}
		return PrincipalRef{}, nil
	case "user", "visitor":
		if id == "" {
			return PrincipalRef{}, fmt.Errorf("%w: empty %s id", errBadPrincipal, kind)
		}
		if kind == "user" {
			return UserRef(id), nil
		}
		return VisitorRef(id), nil
	default:
		return PrincipalRef{}, fmt.Errorf("%w: kind %q", errBadPrincipal, kind)
	}
}
