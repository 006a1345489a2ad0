// Package apperr defines the error taxonomy shared by services and its mapping to HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Base error kinds. Services return these (wrapped with %w) and the HTTP edge maps them with HTTPStatus.
var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrForbidden              = errors.New("forbidden")
	ErrNotAMember             = errors.New("not a member of this organization")
	ErrInvalidCoupon          = errors.New("invalid coupon")
	ErrNoOrganizationSelected = errors.New("no organization selected")
	ErrNotFound               = errors.New("not found")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrConflict               = errors.New("conflict")
	ErrQuotaExceeded          = errors.New("quota exceeded")
)

// HTTPStatus maps err to the response status code. Unknown errors are 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotAMember):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidCoupon), errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoOrganizationSelected), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrQuotaExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a client. Internal errors are not leaked.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

// Code returns a stable machine-readable name for err's kind, or "internal".
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal"
}

// kinds is ordered so the most specific kind wins when an error wraps several.
var kinds = []struct {
	err  error
	code string
}{
	{ErrNotAMember, "not_a_member"},
	{ErrNoOrganizationSelected, "no_organization_selected"},
	{ErrInvalidCoupon, "invalid_coupon"},
	{ErrQuotaExceeded, "quota_exceeded"},
	{ErrUnauthenticated, "unauthenticated"},
	{ErrForbidden, "forbidden"},
	{ErrNotFound, "not_found"},
	{ErrInvalidArgument, "invalid_argument"},
	{ErrConflict, "conflict"},
}
