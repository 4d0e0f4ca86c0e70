package payments

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func TestPartyMapping(t *testing.T) {
	require.Equal(t, MappingReceivable, Payment{PartyType: PartyCustomer}.PartyMapping())
	require.Equal(t, MappingPayable, Payment{PartyType: PartySupplier}.PartyMapping())
	require.Equal(t, MappingSuspense, Payment{PartyType: PartyOther}.PartyMapping())
}

func TestDescription(t *testing.T) {
	receipt := Payment{Type: TypeReceipt, Number: "RCP-000001", PartyName: "Acme Ltd"}
	require.Equal(t, "Receipt RCP-000001 - Acme Ltd", receipt.Description())

	payment := Payment{Type: TypePayment, Number: "PAY-000003"}
	require.Equal(t, "Payment PAY-000003", payment.Description())
}

func TestPaymentInputValidate(t *testing.T) {
	valid := PaymentInput{Type: TypeReceipt, PartyType: PartyCustomer, PartyID: 1, Amount: 100}
	require.NoError(t, valid.Validate())

	badType := valid
	badType.Type = "TRANSFER"
	require.Error(t, badType.Validate())

	noParty := valid
	noParty.PartyID = 0
	require.Error(t, noParty.Validate())

	other := valid
	other.PartyType = PartyOther
	other.PartyID = 0
	require.NoError(t, other.Validate())

	badAmount := valid
	badAmount.Amount = 0
	require.Error(t, badAmount.Validate())

	badMethod := valid
	badMethod.Method = "barter"
	require.Error(t, badMethod.Validate())

	badRef := valid
	badRef.Reference = shared.NewRef(shared.RefAdjustment, 5, "ADJ-000005")
	require.Error(t, badRef.Validate())

	docRef := valid
	docRef.Reference = shared.NewRef(shared.RefInvoice, 5, "INV-2025-005")
	require.NoError(t, docRef.Validate())
}
