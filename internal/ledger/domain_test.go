package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultNormalBalance(t *testing.T) {
	require.Equal(t, NormalBalanceDebit, DefaultNormalBalance(AccountTypeAsset))
	require.Equal(t, NormalBalanceDebit, DefaultNormalBalance(AccountTypeExpense))
	require.Equal(t, NormalBalanceCredit, DefaultNormalBalance(AccountTypeLiability))
	require.Equal(t, NormalBalanceCredit, DefaultNormalBalance(AccountTypeEquity))
	require.Equal(t, NormalBalanceCredit, DefaultNormalBalance(AccountTypeRevenue))
}

func TestPostingDelta(t *testing.T) {
	cash := Account{NormalBalance: NormalBalanceDebit}
	require.InDelta(t, 100.0, cash.PostingDelta(100, 0), 0.0001)
	require.InDelta(t, -40.0, cash.PostingDelta(0, 40), 0.0001)

	sales := Account{NormalBalance: NormalBalanceCredit}
	require.InDelta(t, 100.0, sales.PostingDelta(0, 100), 0.0001)
	require.InDelta(t, -40.0, sales.PostingDelta(40, 0), 0.0001)
}

func TestIsBalanced(t *testing.T) {
	lines := []JournalLine{
		{AccountID: 1, Debit: 100},
		{AccountID: 2, Credit: 100},
	}
	require.True(t, IsBalanced(lines))

	debit, credit := CalculateTotals(lines)
	require.InDelta(t, 100.0, debit, 0.0001)
	require.InDelta(t, 100.0, credit, 0.0001)

	lines[1].Credit = 100.005
	require.True(t, IsBalanced(lines))

	lines[1].Credit = 100.02
	require.False(t, IsBalanced(lines))
}

func TestEntryInputValidate(t *testing.T) {
	base := func() EntryInput {
		return EntryInput{
			Date: mustDate(t, "2026-01-15"),
			Lines: []LineInput{
				{AccountID: 1, Debit: 50},
				{AccountID: 2, Credit: 50},
			},
		}
	}

	require.NoError(t, base().Validate())

	in := base()
	in.Lines = in.Lines[:1]
	require.ErrorIs(t, in.Validate(), ErrTooFewLines)

	in = base()
	in.Lines[0].Debit = -1
	require.Error(t, in.Validate())

	in = base()
	in.Lines[0].Credit = 10
	require.Error(t, in.Validate())

	in = base()
	in.Lines[1].AccountID = 0
	require.Error(t, in.Validate())
}

func TestDefaultReversalDescription(t *testing.T) {
	require.Equal(t, "Reversal of JE-000042", defaultReversalDescription("", "JE-000042"))
	require.Equal(t, "fix", defaultReversalDescription("fix", "JE-000042"))
}
