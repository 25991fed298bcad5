package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorSignatureInvalid    = "MARKET_SIGNATURE_INVALID"
	ErrorMalformedPayload    = "MARKET_MALFORMED_PAYLOAD"
	ErrorMissingField        = "MARKET_MISSING_FIELD"
	ErrorDownstreamFailure   = "MARKET_DOWNSTREAM_FAILURE"
	ErrorMarketplaceNotFound = "MARKET_MARKETPLACE_NOT_FOUND"
	ErrorMarketplaceDisabled = "MARKET_MARKETPLACE_DISABLED"
	ErrorInternal            = "MARKET_INTERNAL_ERROR"
)

func marketError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func marketWrapError(
	source error,
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return marketError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func NewSignatureError(message string, metadata map[string]any) *goerrors.Error {
	return marketError(message, goerrors.CategoryAuth, http.StatusUnauthorized, ErrorSignatureInvalid, metadata)
}

func NewMalformedPayloadError(message string, cause error, metadata map[string]any) *goerrors.Error {
	return marketWrapError(cause, message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorMalformedPayload, metadata)
}

func NewMissingFieldError(field string, metadata map[string]any) *goerrors.Error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["field"] = field
	return marketError(
		"required field is absent: "+field,
		goerrors.CategoryValidation,
		http.StatusUnprocessableEntity,
		ErrorMissingField,
		metadata,
	)
}

func NewDownstreamError(message string, cause error, metadata map[string]any) *goerrors.Error {
	return marketWrapError(cause, message, goerrors.CategoryOperation, http.StatusBadGateway, ErrorDownstreamFailure, metadata)
}

func NewMarketplaceDisabledError(name string) *goerrors.Error {
	return marketError(
		"marketplace is disabled: "+name,
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		ErrorMarketplaceDisabled,
		map[string]any{"marketplace": name},
	)
}

func NewMarketplaceNotFoundError(name string) *goerrors.Error {
	return marketError(
		"marketplace is not registered: "+name,
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		ErrorMarketplaceNotFound,
		map[string]any{"marketplace": name},
	)
}

// IsMissingField reports whether err carries the missing-field text code.
// The processor uses it to acknowledge the delivery as failed without
// treating it as a retryable downstream problem.
func IsMissingField(err error) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == ErrorMissingField
	}
	return false
}

func IsMalformedPayload(err error) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == ErrorMalformedPayload
	}
	return false
}

func IsSignatureInvalid(err error) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == ErrorSignatureInvalid
	}
	return false
}

// MapError normalizes foreign errors into the module envelope so every
// failure crossing the dispatch boundary carries a category, an HTTP status
// and a text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return envelope(rich)
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return NewSignatureError(err.Error(), nil)
	case strings.Contains(msg, "not registered"), strings.Contains(msg, "not supported"):
		return envelope(goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error()).
			WithTextCode(ErrorMarketplaceNotFound))
	case strings.Contains(msg, "required field"), strings.Contains(msg, "is absent"):
		return envelope(goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
			WithTextCode(ErrorMissingField))
	case strings.Contains(msg, "parse"), strings.Contains(msg, "malformed"), strings.Contains(msg, "invalid"):
		return envelope(goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error()).
			WithTextCode(ErrorMalformedPayload))
	}
	return envelope(goerrors.Wrap(err, goerrors.CategoryOperation, err.Error()).
		WithTextCode(ErrorDownstreamFailure))
}

func envelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorMalformedPayload
	case goerrors.CategoryValidation:
		return ErrorMissingField
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorSignatureInvalid
	case goerrors.CategoryNotFound:
		return ErrorMarketplaceNotFound
	case goerrors.CategoryOperation:
		return ErrorDownstreamFailure
	default:
		return ErrorInternal
	}
}

func categoryStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryValidation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus resolves the response status for an error, falling back to 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich.Code != 0 {
			return rich.Code
		}
		return categoryStatus(rich.Category)
	}
	return http.StatusInternalServerError
}
