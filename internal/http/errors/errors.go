// Package errors define el formato estándar de errores HTTP del servicio.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la aplicación.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa, solo para logs
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail retorna una copia con el detalle dado.
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// New crea un nuevo AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap crea un AppError envolviendo un error existente.
func Wrap(err error, status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Errores comunes.
var (
	ErrBadRequest          = New(http.StatusBadRequest, "bad_request", "invalid request")
	ErrUnauthorized        = New(http.StatusUnauthorized, "unauthorized", "authentication required")
	ErrForbidden           = New(http.StatusForbidden, "forbidden", "access denied")
	ErrNotFound            = New(http.StatusNotFound, "not_found", "resource not found")
	ErrMethodNotAllowed    = New(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	ErrTooManyRequests     = New(http.StatusTooManyRequests, "rate_limited", "too many requests")
	ErrInternalServerError = New(http.StatusInternalServerError, "internal_error", "internal server error")
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// FromError convierte un error genérico en AppError (interno si no lo es).
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Wrap(err, http.StatusInternalServerError, "internal_error", "internal server error")
}

// WriteError escribe la respuesta JSON del error.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	resp := errorResponse{Code: appErr.Code, Message: appErr.Message, Detail: appErr.Detail}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteJSON escribe una respuesta JSON exitosa.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
