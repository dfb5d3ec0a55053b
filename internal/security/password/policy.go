package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrWeak agrupa los rechazos de Policy.Check.
var ErrWeak = errors.New("password: weak secret")

// WeakError lista las reglas incumplidas en texto apto para mostrar en consola.
type WeakError struct {
	Unmet []string
}

func (e *WeakError) Error() string {
	return "needs " + strings.Join(e.Unmet, ", ")
}

func (e *WeakError) Is(target error) bool { return target == ErrWeak }

// Policy valida secretos elegidos por humanos (passwords de usuarios y client secrets
// cargados por seed/CLI). Los secrets generados por el CLI siempre la cumplen.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy es la política aplicada por tokencorectl.
var DefaultPolicy = Policy{MinLength: 10, RequireLower: true, RequireDigit: true}

// Check devuelve nil o un *WeakError.
func (p Policy) Check(secret string) error {
	var unmet []string
	if n := len([]rune(secret)); n < p.MinLength {
		unmet = append(unmet, fmt.Sprintf("at least %d characters (got %d)", p.MinLength, n))
	}
	var classes struct{ upper, lower, digit, symbol bool }
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			classes.upper = true
		case unicode.IsLower(r):
			classes.lower = true
		case unicode.IsDigit(r):
			classes.digit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			classes.symbol = true
		}
	}
	rules := []struct {
		required, present bool
		label             string
	}{
		{p.RequireUpper, classes.upper, "an uppercase letter"},
		{p.RequireLower, classes.lower, "a lowercase letter"},
		{p.RequireDigit, classes.digit, "a digit"},
		{p.RequireSymbol, classes.symbol, "a symbol"},
	}
	for _, rule := range rules {
		if rule.required && !rule.present {
			unmet = append(unmet, rule.label)
		}
	}
	if len(unmet) > 0 {
		return &WeakError{Unmet: unmet}
	}
	return nil
}
