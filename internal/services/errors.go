package services

import (
	"errors"
	"fmt"

	"github.com/doug-pr/API-Pizzaria/internal/repositories"
)

var (
	// ErrUnauthenticated indicates no principal accompanied the call.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTokenExpired indicates a well-formed refresh token past its expiry; the client must log in again.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrUserInactive indicates the principal's account is deactivated.
	ErrUserInactive = errors.New("user inactive")
	// ErrForbidden indicates the principal may see the resource but lacks the role or ownership to act on it.
	ErrForbidden = errors.New("forbidden")
	// ErrOrderNotFound covers both missing orders and orders the principal may not see.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrItemNotFound covers both missing items and items of orders the principal may not see.
	ErrItemNotFound = errors.New("order item: not found")
	// ErrInvalidStateTransition indicates a mutation of a terminal order.
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
	// ErrInvalidInput signals the caller provided invalid data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("auth: email already registered")
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrStorageUnavailable indicates a storage failure the caller may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var serviceErrors = []error{
	ErrUnauthenticated,
	ErrTokenExpired,
	ErrUserInactive,
	ErrForbidden,
	ErrOrderNotFound,
	ErrItemNotFound,
	ErrInvalidStateTransition,
	ErrInvalidInput,
	ErrDuplicateEmail,
	ErrInvalidCredentials,
	ErrStorageUnavailable,
}

// mapRepositoryError translates repository failures. notFound is returned for missing
// records; everything else the storage layer reports is surfaced as ErrStorageUnavailable.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	for _, known := range serviceErrors {
		if errors.Is(err, known) {
			return err
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() && notFound != nil {
		return fmt.Errorf("%w: %v", notFound, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
