package httpadapter

import (
	"net/http"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrNoDocuments),
		domain.IsKind(err, domain.ErrModeUnavailable):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrContractViolation):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrLLMResponse),
		domain.IsKind(err, domain.ErrLLMSchema):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrLLMNotConfigured),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
