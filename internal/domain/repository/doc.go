// Package repository define los contratos de persistencia del core de tokens.
//
// Cada realm recibe su propio Store: clients, usuarios y los cuatro repositorios de
// tokens (access, refresh, auth code, scope) nunca se comparten entre realms.
//
//	┌─────────────────────────────────────────────────────┐
//	│        oauth (grants, validador de recursos)        │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│        domain/repository (interfaces)               │
//	└─────────────────────────────────────────────────────┘
//	                 │                   │
//	                 ▼                   ▼
//	        ┌─────────────┐      ┌─────────────┐
//	        │ store/memory│      │  store/pg   │
//	        └─────────────┘      └─────────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro.
//   - Persist nunca sobrescribe: un identificador existente devuelve ErrIdentifierCollision.
//   - Revoke es compare-and-set: devuelve true sólo en la llamada que hizo la transición.
//     Revocar algo ya revocado o inexistente no es un error.
package repository
