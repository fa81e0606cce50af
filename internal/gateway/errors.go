package gateway

import (
	"errors"
	"net/http"
)

// Operation labels used in the user-facing failure message.
const (
	OpList       = "listar instâncias"
	OpCreate     = "criar instância"
	OpUpdate     = "atualizar instância"
	OpDelete     = "deletar instância"
	OpDisconnect = "desconectar instância"
	OpReload     = "recarregar instância"
	OpQRCode     = "obter QR code"
)

// Error is the only error type returned by Client. Its message is stable per
// operation ("Falha ao <operação>") regardless of what went wrong underneath.
type Error struct {
	Op string
	// StatusCode is the HTTP status of the response, or 0 when no response arrived.
	StatusCode int
	cause      error
}

func (e *Error) Error() string {
	return "Falha ao " + e.Op
}

// Cause returns the underlying failure for logging. It is deliberately not
// exposed through Unwrap.
func (e *Error) Cause() error {
	return e.cause
}

// IsClientError reports whether err is a gateway failure caused by a 4xx response.
func IsClientError(err error) bool {
	var gerr *Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.StatusCode >= http.StatusBadRequest && gerr.StatusCode < http.StatusInternalServerError
}
