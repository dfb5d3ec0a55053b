package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto de datos (ej: cambiar el realm de un client).
	ErrConflict = errors.New("conflict")

	// ErrIdentifierCollision indica que el identificador generado ya existe.
	// Es fatal para esa emisión: el caller reintenta con un identificador nuevo.
	ErrIdentifierCollision = errors.New("unique identifier collision")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsCollision verifica si el error es ErrIdentifierCollision.
func IsCollision(err error) bool {
	return errors.Is(err, ErrIdentifierCollision)
}
