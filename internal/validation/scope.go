// Package validation valida identificadores que entran por config, seed o CLI.
package validation

import (
	"net/url"
	"regexp"
)

// Scopes: minúsculas, empiezan y terminan en [a-z0-9], en el medio [a-z0-9:_.-], 1..64 chars.
// Sin espacios ni ';' (el separador de scopes es el espacio).
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// client_id: 1..128 chars, [A-Za-z0-9._-], empieza alfanumérico.
var clientIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidScopeName indica si el nombre de scope es aceptable.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// ValidClientID indica si el client_id es aceptable.
func ValidClientID(id string) bool {
	return clientIDRe.MatchString(id)
}

// ValidRedirectURI exige URI absoluta, sin fragmento (RFC 6749 §3.1.2).
func ValidRedirectURI(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != "" && u.Fragment == "" && u.User == nil
}
