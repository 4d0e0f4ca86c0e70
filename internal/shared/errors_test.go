package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidationf(t *testing.T) {
	err := Validationf("amount", "must be > 0, got %.2f", -5.0)
	require.True(t, IsValidation(err))
	require.Equal(t, "validation: amount: must be > 0, got -5.00", err.Error())

	wrapped := fmt.Errorf("create payment: %w", err)
	require.True(t, IsValidation(wrapped))
}

func TestInvalidStateError(t *testing.T) {
	err := &InvalidStateError{Entity: "invoice INV-2025-001", State: "CANCELLED", Op: "send"}
	require.True(t, IsInvalidState(err))
	require.Equal(t, "invoice INV-2025-001: cannot send from state CANCELLED", err.Error())
	require.False(t, IsInvalidState(errors.New("other")))
}

func TestUserSafeMessage(t *testing.T) {
	require.Empty(t, UserSafeMessage(nil))
	require.Equal(t, "The requested record was not found.", UserSafeMessage(fmt.Errorf("get: %w", ErrNotFound)))

	stock := &InsufficientStockError{ProductID: 7, Requested: 5, Available: 2}
	require.Equal(t, stock.Error(), UserSafeMessage(stock))

	require.Equal(t, "An internal error occurred. Please try again.", UserSafeMessage(errors.New("pg down")))
}

func TestDocumentRef(t *testing.T) {
	require.True(t, DocumentRef{}.IsZero())
	require.NoError(t, DocumentRef{}.Validate())

	ref := NewRef(RefInvoice, 42, "INV-2025-042")
	require.NoError(t, ref.Validate())
	require.Equal(t, "INVOICE INV-2025-042", ref.String())
	require.Equal(t, "INVOICE #42", DocumentRef{Kind: RefInvoice, ID: 42}.String())

	bad := DocumentRef{Kind: "RECEIPT", ID: 1}
	require.True(t, IsValidation(bad.Validate()))
}

func TestParseRefKind(t *testing.T) {
	kind, err := ParseRefKind(" invoice ")
	require.NoError(t, err)
	require.Equal(t, RefInvoice, kind)

	_, err = ParseRefKind("voucher")
	require.True(t, IsValidation(err))
}
