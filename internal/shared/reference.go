package shared

import (
	"fmt"
	"strings"
)

// RefKind enumerates the document types a record may reference.
type RefKind string

const (
	RefInvoice    RefKind = "INVOICE"
	RefPurchase   RefKind = "PURCHASE"
	RefPayment    RefKind = "PAYMENT"
	RefAdjustment RefKind = "ADJUSTMENT"
	RefReversal   RefKind = "REVERSAL"
	RefManual     RefKind = "MANUAL"
)

// DocumentRef is a typed reference to the originating document of a posting
// or movement. The zero value means "no reference".
type DocumentRef struct {
	Kind   RefKind `json:"kind"`
	ID     int64   `json:"id"`
	Number string  `json:"number,omitempty"`
}

// NewRef builds a DocumentRef.
func NewRef(kind RefKind, id int64, number string) DocumentRef {
	return DocumentRef{Kind: kind, ID: id, Number: number}
}

// IsZero reports whether the reference is unset.
func (r DocumentRef) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

// Validate checks the reference kind is known.
func (r DocumentRef) Validate() error {
	if r.IsZero() {
		return nil
	}
	switch r.Kind {
	case RefInvoice, RefPurchase, RefPayment, RefAdjustment, RefReversal, RefManual:
		return nil
	}
	return Validationf("reference", "unknown kind %q", r.Kind)
}

func (r DocumentRef) String() string {
	if r.IsZero() {
		return ""
	}
	if r.Number != "" {
		return fmt.Sprintf("%s %s", r.Kind, r.Number)
	}
	return fmt.Sprintf("%s #%d", r.Kind, r.ID)
}

// ParseRefKind normalises an incoming kind string.
func ParseRefKind(raw string) (RefKind, error) {
	kind := RefKind(strings.ToUpper(strings.TrimSpace(raw)))
	ref := DocumentRef{Kind: kind, ID: 1}
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return kind, nil
}
