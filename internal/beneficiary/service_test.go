package beneficiary

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/identity"
)

func setup(t *testing.T) (*Service, identity.User, identity.User, identity.User) {
	t.Helper()
	users := identity.NewService(identity.NewMemoryRepository())
	ctx := context.Background()
	a, err := users.Register(ctx, identity.RegisterInput{Phone: "100", FullName: "A"})
	require.NoError(t, err)
	b, err := users.Register(ctx, identity.RegisterInput{Phone: "200", FullName: "B"})
	require.NoError(t, err)
	c, err := users.Register(ctx, identity.RegisterInput{Phone: "300", FullName: "C"})
	require.NoError(t, err)
	return NewService(NewMemoryRepository(), users), a, b, c
}

func TestRecordTransferAccumulates(t *testing.T) {
	svc, a, b, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordTransfer(ctx, a.ID, b.ID, decimal.RequireFromString("10.50")))
	require.NoError(t, svc.RecordTransfer(ctx, a.ID, b.ID, decimal.RequireFromString("4.50")))

	list, err := svc.List(ctx, a.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].TotalSent.Equal(decimal.RequireFromString("15.00")))
	assert.Equal(t, 2, list[0].TransactionCount)
	assert.NotNil(t, list[0].LastTransactionAt)
	assert.Equal(t, "B", list[0].Name)
}

func TestRecordTransferConcurrent(t *testing.T) {
	svc, a, b, _ := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.RecordTransfer(ctx, a.ID, b.ID, decimal.NewFromInt(2)))
		}()
	}
	wg.Wait()

	list, err := svc.List(ctx, a.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 25, list[0].TransactionCount)
	assert.True(t, list[0].TotalSent.Equal(decimal.NewFromInt(50)))
}

func TestUpsertRejectsSelfAndUnknown(t *testing.T) {
	svc, a, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, a.ID, identity.Lookup{Phone: a.Phone}, "me")
	assert.True(t, errors.Is(err, ErrSelf))

	_, err = svc.Upsert(ctx, a.ID, identity.Lookup{Phone: "999"}, "ghost")
	assert.True(t, errors.Is(err, identity.ErrNotFound))
}

func TestListOrderingAndFavorites(t *testing.T) {
	svc, a, b, c := setup(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, a.ID, identity.Lookup{AccountNumber: c.AccountNumber}, "Cee")
	require.NoError(t, err)
	require.NoError(t, svc.RecordTransfer(ctx, a.ID, b.ID, decimal.NewFromInt(1)))

	list, err := svc.List(ctx, a.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].BeneficiaryID, "paid contact sorts before never-paid contact")
	assert.Equal(t, "Cee", list[1].Nickname)

	_, err = svc.SetFavorite(ctx, a.ID, c.ID, true)
	require.NoError(t, err)
	favs, err := svc.List(ctx, a.ID, true)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, c.ID, favs[0].BeneficiaryID)

	_, err = svc.SetFavorite(ctx, b.ID, c.ID, true)
	assert.True(t, errors.Is(err, ErrNotFound))
}
