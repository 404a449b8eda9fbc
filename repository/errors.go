package repository

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-repository-ports/ports"
)

// Text codes attached to repository errors.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeUnknownAttribute    = "UNKNOWN_ATTRIBUTE"
	CodeUnsupportedOperator = "UNSUPPORTED_OPERATOR"
	CodeInvalidValue        = "INVALID_FILTER_VALUE"
	CodeInvalidMapping      = "INVALID_MAPPING"
)

// NotFoundError reports that no row matched pk.
func NotFoundError(entity, pk string) error {
	return goerrors.New(fmt.Sprintf("%s with pk: %s not found", entity, pk), goerrors.CategoryNotFound).
		WithTextCode(CodeNotFound).
		WithMetadata(map[string]any{"entity": entity, "pk": pk})
}

func unknownAttributeError(attribute string) error {
	return goerrors.New(fmt.Sprintf("unknown attribute: %s", attribute), goerrors.CategoryValidation).
		WithTextCode(CodeUnknownAttribute).
		WithMetadata(map[string]any{"attribute": attribute})
}

func unsupportedOperatorError(op ports.Operator) error {
	return goerrors.New(fmt.Sprintf("unsupported operator: %s", op), goerrors.CategoryValidation).
		WithTextCode(CodeUnsupportedOperator).
		WithMetadata(map[string]any{"operator": string(op)})
}

func invalidValueError(attribute string, op ports.Operator, reason string) error {
	return goerrors.New(fmt.Sprintf("invalid value for %s %s: %s", attribute, op, reason), goerrors.CategoryValidation).
		WithTextCode(CodeInvalidValue).
		WithMetadata(map[string]any{"attribute": attribute, "operator": string(op)})
}

func invalidMappingError(entity, reason string) error {
	return goerrors.New(fmt.Sprintf("invalid mapping for %s: %s", entity, reason), goerrors.CategoryBadInput).
		WithTextCode(CodeInvalidMapping).
		WithMetadata(map[string]any{"entity": entity})
}

// TextCode returns the text code of a categorized error, or "".
func TextCode(err error) string {
	var e *goerrors.Error
	if errors.As(err, &e) {
		return e.TextCode
	}
	return ""
}

// IsNotFound reports whether err is a repository NotFound error.
func IsNotFound(err error) bool {
	var e *goerrors.Error
	return errors.As(err, &e) && e.Category == goerrors.CategoryNotFound
}

// IsFilterError reports whether err came from building a filter condition.
func IsFilterError(err error) bool {
	switch TextCode(err) {
	case CodeUnknownAttribute, CodeUnsupportedOperator, CodeInvalidValue:
		return true
	}
	return false
}
