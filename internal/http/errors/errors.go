// Package errors renderiza errores OAuth como respuestas HTTP.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/tokencore/internal/oauth"
)

// envelope es el cuerpo JSON de error. error_description y message llevan el mismo texto.
type envelope struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	Hint             string `json:"hint,omitempty"`
}

// WriteError escribe el envelope OAuth. Cualquier error que no sea *oauth.Error sale como server_error;
// la causa interna nunca se serializa.
func WriteError(w http.ResponseWriter, err error) {
	oe := oauth.AsError(err)
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	if oe.HTTPStatus == http.StatusUnauthorized {
		if oe.Code == oauth.CodeInvalidToken {
			h.Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		} else if oe.Code == oauth.CodeInvalidClient {
			h.Set("WWW-Authenticate", `Basic realm="OAuth"`)
		}
	}
	w.WriteHeader(oe.HTTPStatus)
	_ = json.NewEncoder(w).Encode(envelope{
		Error:            oe.Code,
		ErrorDescription: oe.Message,
		Message:          oe.Message,
		Hint:             oe.Hint,
	})
}

// WriteRedirectOrError redirige al client cuando el error ya tiene un redirect_uri validado;
// si no, responde JSON.
func WriteRedirectOrError(w http.ResponseWriter, r *http.Request, err error) {
	if u, ok := oauth.AsError(err).RedirectURL(); ok {
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, u, http.StatusFound)
		return
	}
	WriteError(w, err)
}

// WriteJSON responde JSON con el status dado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
