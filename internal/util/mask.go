package util

import (
	"net/url"
	"strings"
)

// MaskSecret deja visible sólo el primer y último caracter.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "***"
	}
	return s[:1] + "…" + s[len(s)-1:]
}

// MaskDSN oculta la password de un DSN URL (postgres://, redis://).
// Si no parsea como URL devuelve "***".
func MaskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	return u.Redacted()
}
