package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable category of a user-facing error.
type ErrorKind string

const (
	KindEmptyCart           ErrorKind = "empty_cart"
	KindInsufficientStock   ErrorKind = "insufficient_stock"
	KindProductNotFound     ErrorKind = "product_not_found"
	KindOrderCreationFailed ErrorKind = "order_creation_failed"
	KindInvalidTransition   ErrorKind = "invalid_transition"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindNotFound            ErrorKind = "not_found"
	KindUnauthorized        ErrorKind = "unauthorized"
)

// Error is a user-facing failure with a kind, the offending field and a
// human-readable detail.
type Error struct {
	Kind   ErrorKind
	Field  string
	Detail string

	// Remaining is the live stock reported by insufficient_stock errors.
	Remaining *int
	// ProductID identifies the offending product when known.
	ProductID int64

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func ErrEmptyCart() *Error {
	return &Error{Kind: KindEmptyCart, Field: "cart", Detail: "Empty Cart."}
}

func ErrInsufficientStock(productID int64, remaining int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Field:     "quantity",
		Detail:    fmt.Sprintf("Not enough product left. Remaining at the moment: %d", remaining),
		Remaining: &remaining,
		ProductID: productID,
	}
}

func ErrProductNotFound(productID int64) *Error {
	return &Error{
		Kind:      KindProductNotFound,
		Field:     "product_id",
		Detail:    "Product does not exist",
		ProductID: productID,
	}
}

func ErrOrderCreationFailed(cause error) *Error {
	return &Error{
		Kind:   KindOrderCreationFailed,
		Field:  "order",
		Detail: "order not created due to related errors",
		Err:    cause,
	}
}

func ErrInvalidTransition(from, to OrderStatus) *Error {
	return &Error{
		Kind:   KindInvalidTransition,
		Field:  "status",
		Detail: fmt.Sprintf("order in status %s cannot become %s", from, to),
	}
}

func ErrInvalidInput(field, detail string) *Error {
	return &Error{Kind: KindInvalidInput, Field: field, Detail: detail}
}

func ErrNotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Detail: resource + " does not exist"}
}

func ErrUnauthorized(detail string) *Error {
	return &Error{Kind: KindUnauthorized, Detail: detail}
}
