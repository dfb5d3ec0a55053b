// Package types define tipos de dominio compartidos entre paquetes.
package types

import "fmt"

// Realm es un contexto aislado con sus propios clients, principals y tokens.
type Realm string

const (
	// RealmBackend es el realm administrativo.
	RealmBackend Realm = "backend"
	// RealmFrontend es el realm storefront; admite principals Visitor.
	RealmFrontend Realm = "frontend"
)

// Realms lista los realms soportados.
var Realms = []Realm{RealmBackend, RealmFrontend}

// IsValid retorna true si el realm es conocido.
func (r Realm) IsValid() bool {
	return r == RealmBackend || r == RealmFrontend
}

func (r Realm) String() string { return string(r) }

// ParseRealm valida un realm recibido de config o de una ruta.
func ParseRealm(s string) (Realm, error) {
	r := Realm(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown realm %q", s)
	}
	return r, nil
}
