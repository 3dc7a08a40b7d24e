package domain

import (
	"errors"
	"log/slog"
)

// Process exit codes reported for each error type.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitAuth        = 3
	ExitNetwork     = 4
	ExitStorage     = 5
	ExitMalformedIO = 6
)

// ErrorHandler converts errors into an exit code and a message for the user.
type ErrorHandler interface {
	HandleError(err error) (exitCode int, message string)
	LogError(err error)
}

// DefaultErrorHandler is the default implementation of ErrorHandler.
type DefaultErrorHandler struct {
	logger *slog.Logger
}

// NewDefaultErrorHandler creates a new default error handler.
func NewDefaultErrorHandler(logger *slog.Logger) *DefaultErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultErrorHandler{
		logger: logger,
	}
}

// HandleError maps domain errors to exit codes. Other errors keep their own
// text and exit with ExitFailure.
func (h *DefaultErrorHandler) HandleError(err error) (exitCode int, message string) {
	if err == nil {
		return ExitOK, ""
	}

	h.LogError(err)

	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return ExitFailure, err.Error()
	}

	switch domainErr.Type {
	case InvalidCredentialsError:
		return ExitAuth, "invalid username or password"
	case SessionExpiredError:
		return ExitAuth, "session expired, please log in again"
	case TransientNetworkError:
		return ExitNetwork, "could not reach the server: " + err.Error()
	case StorageUnavailableError:
		return ExitStorage, "credential storage unavailable: " + err.Error()
	case InternalError:
		return ExitMalformedIO, err.Error()
	default:
		return ExitFailure, err.Error()
	}
}

// LogError logs the error with appropriate level based on error type
func (h *DefaultErrorHandler) LogError(err error) {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		h.logger.Error("unexpected error", "error", err)
		return
	}

	switch domainErr.Type {
	case InvalidCredentialsError, SessionExpiredError:
		h.logger.Info("auth error", "code", domainErr.Code, "status", domainErr.Status)
	case TransientNetworkError, StorageUnavailableError:
		h.logger.Warn("infrastructure error", "code", domainErr.Code, "error", err)
	default:
		h.logger.Error("internal error", "code", domainErr.Code, "error", err)
	}
}
