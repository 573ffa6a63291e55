package bursar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/gateway"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("bursar: not found")
	ErrAlreadyExists = errors.New("bursar: already exists")
	ErrInvalidInput  = errors.New("bursar: invalid input")

	// Tenant and entitlement errors
	ErrTenantNotFound  = errors.New("bursar: tenant not found")
	ErrUnknownEdition  = errors.New("bursar: unknown edition")
	ErrEditionInactive = errors.New("bursar: edition is not active")
	ErrUnknownModule   = errors.New("bursar: unknown module key")

	// Plan errors
	ErrPlanNotFound      = errors.New("bursar: plan not found")
	ErrPlanInactive      = errors.New("bursar: plan is inactive")
	ErrDuplicatePlanName = errors.New("bursar: plan name already in use")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("bursar: subscription not found")
	ErrAlreadyOnPlan        = errors.New("bursar: tenant is already on this plan")

	// Invoice errors
	ErrInvoiceNotFound   = errors.New("bursar: invoice not found")
	ErrDuplicatePeriod   = errors.New("bursar: an active invoice already exists for this period")
	ErrInvalidTransition = errors.New("bursar: invalid invoice transition")

	// Payment errors
	ErrPaymentNotFound = errors.New("bursar: payment not found")
	ErrTenantMismatch  = errors.New("bursar: payment and invoice belong to different tenants")
	ErrMissingTenant   = errors.New("bursar: payment event carries no tenant")
	ErrNoGateway       = errors.New("bursar: no payment gateway configured")

	// Store errors
	ErrStoreNotReady          = errors.New("bursar: store not ready")
	ErrConcurrentModification = errors.New("bursar: record was modified concurrently")

	// Re-exported from leaf packages so callers can match on one package.
	ErrCacheMiss        = entitlement.ErrCacheMiss
	ErrInvalidSignature = gateway.ErrInvalidSignature
	ErrIgnoredEvent     = gateway.ErrIgnoredEvent
	ErrUnknownGateway   = gateway.ErrUnknownGateway
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("bursar: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// TenantError attributes a failure to one tenant of a multi-tenant operation.
type TenantError struct {
	TenantID string
	Err      error
}

func (e *TenantError) Error() string {
	return fmt.Sprintf("bursar: tenant %s: %v", e.TenantID, e.Err)
}

func (e *TenantError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "bursar: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("bursar: %d errors occurred: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrOrNil returns nil when nothing was collected.
func (e *MultiError) ErrOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return *e
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsConflict returns true if the request clashes with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrDuplicatePeriod) ||
		errors.Is(err, ErrDuplicatePlanName) ||
		errors.Is(err, ErrAlreadyOnPlan) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsValidation returns true if the input was rejected before any mutation.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMissingTenant) ||
		errors.Is(err, ErrUnknownEdition) ||
		errors.Is(err, ErrUnknownModule) ||
		errors.Is(err, ErrEditionInactive) ||
		errors.Is(err, ErrPlanInactive)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrConcurrentModification)
}

// validationErrors converts validator field errors into a MultiError of
// ValidationError. Other errors are wrapped as invalid input.
func validationErrors(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var me MultiError
	for _, fe := range fieldErrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		me.Add(ValidationError{Field: fe.Field(), Message: msg})
	}
	return me.ErrOrNil()
}
