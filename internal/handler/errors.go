package handler

import (
	"errors"
	"log"
	"net/http"

	"affluence/internal/auth"
	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/service"

	"github.com/gin-gonic/gin"
)

// statusFor maps service and ledger errors to an HTTP status. Zero means the
// error is unexpected and should not be shown to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, ledger.ErrCouponNotFound),
		errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrWithdrawalNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrCouponAlreadyUsed),
		errors.Is(err, service.ErrTaskAlreadyCompleted),
		errors.Is(err, ledger.ErrDuplicateReference),
		errors.Is(err, service.ErrEmailExists),
		errors.Is(err, service.ErrUsernameExists),
		errors.Is(err, service.ErrWithdrawalState),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, service.ErrTaskInactive),
		errors.Is(err, domain.ErrUnknownCouponType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrUserInactive),
		errors.Is(err, service.ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCreds),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrInvalidBucket),
		errors.Is(err, ledger.ErrInvalidEntryType),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrMissingReference),
		errors.Is(err, service.ErrBelowMinimum),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrStoreUnavailable),
		errors.Is(err, ledger.ErrTransient):
		return http.StatusServiceUnavailable
	}
	return 0
}

// respondError writes err as JSON. Unknown errors are logged under prefix and
// reported to the client as fallback.
func respondError(c *gin.Context, prefix, fallback string, err error) {
	if status := statusFor(err); status != 0 {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	log.Printf("[%s] %s: %v", prefix, fallback, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}
