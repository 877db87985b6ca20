package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/wallet_ledger/internal/analytics"
	"github.com/congo-pay/wallet_ledger/internal/beneficiary"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/pin"
	"github.com/congo-pay/wallet_ledger/internal/store"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

type testNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	return nil
}

type env struct {
	tx            *store.Memory
	users         *identity.Service
	wallets       *wallet.Service
	ledger        *ledger.Service
	pins          *pin.Service
	beneficiaries *beneficiary.Service
	analytics     *analytics.Service
	notifier      *testNotifier
	svc           *Service
}

type account struct {
	user   identity.User
	wallet wallet.Wallet
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{tx: store.NewMemory(2 * time.Second), notifier: &testNotifier{}}
	e.users = identity.NewService(identity.NewMemoryRepository())
	e.wallets = wallet.NewService(e.tx, wallet.NewMemoryRepository(), "USD")
	e.ledger = ledger.NewService(ledger.NewInMemory())
	e.pins = pin.NewService(e.tx, pin.NewMemoryRepository(), pin.Policy{MaxAttempts: 3, Lockout: time.Hour, Cost: bcrypt.MinCost})
	e.beneficiaries = beneficiary.NewService(beneficiary.NewMemoryRepository(), e.users)
	e.analytics = analytics.NewService(e.tx, e.ledger, e.wallets, analytics.NewMemoryRepository(), time.UTC)
	e.svc = NewService(Deps{
		Tx:            e.tx,
		Wallets:       e.wallets,
		Ledger:        e.ledger,
		Pins:          e.pins,
		Users:         e.users,
		Beneficiaries: e.beneficiaries,
		Analytics:     e.analytics,
		Notifier:      e.notifier,
		Logger:        logging.Discard(),
	}, DefaultLimits())
	return e
}

func (e *env) open(t *testing.T, phone, name, balance string) account {
	t.Helper()
	ctx := context.Background()
	u, err := e.users.Register(ctx, identity.RegisterInput{Phone: phone, FullName: name})
	require.NoError(t, err)
	w, err := e.wallets.Create(ctx, wallet.CreateInput{OwnerID: u.ID})
	require.NoError(t, err)
	if balance != "" {
		require.NoError(t, wallet.SeedBalance(ctx, e.tx, e.wallets, w.ID, decimal.RequireFromString(balance)))
	}
	return account{user: u, wallet: w}
}

func (e *env) balance(t *testing.T, a account) decimal.Decimal {
	t.Helper()
	w, err := e.wallets.Get(context.Background(), a.wallet.ID)
	require.NoError(t, err)
	return w.Balance
}

func (e *env) history(t *testing.T, a account) []ledger.Transaction {
	t.Helper()
	page, err := e.ledger.List(context.Background(), a.wallet.ID, ledger.Filter{}, ledger.PageRequest{Size: ledger.MaxPageSize})
	require.NoError(t, err)
	return page.Items
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTransferMovesFundsAndRecordsBothSides(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.open(t, "+100", "Alice", "100.00")
	b := e.open(t, "+200", "Bob", "")

	res, err := e.svc.Transfer(ctx, TransferInput{
		SenderUserID: a.user.ID,
		Recipient:    identity.Lookup{Phone: "+200"},
		Amount:       dec("30.00"),
		Narration:    "lunch",
	})
	require.NoError(t, err)

	assert.True(t, res.SenderBalance.Equal(dec("70")))
	assert.True(t, e.balance(t, a).Equal(dec("70")))
	assert.True(t, e.balance(t, b).Equal(dec("30")))

	assert.Equal(t, ledger.StatusCompleted, res.Debit.Status)
	assert.Equal(t, ledger.TypeDebit, res.Debit.Type)
	assert.True(t, res.Debit.BalanceBefore.Equal(dec("100")))
	assert.True(t, res.Debit.BalanceAfter.Decimal.Equal(dec("70")))
	assert.Equal(t, ledger.StatusCompleted, res.Credit.Status)
	assert.True(t, res.Credit.BalanceAfter.Decimal.Equal(dec("30")))
	assert.Equal(t, res.Debit.CorrelationID, res.Credit.CorrelationID)
	assert.NotEqual(t, res.Debit.Reference, res.Credit.Reference)

	contacts, err := e.beneficiaries.List(ctx, a.user.ID, false)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, b.user.ID, contacts[0].BeneficiaryID)
	assert.True(t, contacts[0].TotalSent.Equal(dec("30")))

	now := time.Now()
	for _, acct := range []account{a, b} {
		report, err := e.analytics.Report(ctx, acct.user.ID, acct.wallet.ID, now, now)
		require.NoError(t, err)
		require.Len(t, report.Daily, 1)
		assert.Equal(t, 1, report.Daily[0].TotalTransactions)
	}

	e.notifier.mu.Lock()
	defer e.notifier.mu.Unlock()
	require.Len(t, e.notifier.msgs, 2)
	assert.Equal(t, notification.KindTransferReceived, e.notifier.msgs[1].Kind)
	assert.Equal(t, b.user.ID, e.notifier.msgs[1].Destination)
}

func TestTransferInsufficientFundsLeavesBalances(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.open(t, "+100", "Alice", "10.00")
	b := e.open(t, "+200", "Bob", "")

	_, err := e.svc.Transfer(ctx, TransferInput{
		SenderUserID: a.user.ID,
		Recipient:    identity.Lookup{AccountNumber: b.user.AccountNumber},
		Amount:       dec("50.00"),
	})
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	assert.True(t, e.balance(t, a).Equal(dec("10")))
	assert.True(t, e.balance(t, b).IsZero())
	for _, acct := range []account{a, b} {
		for _, txn := range e.history(t, acct) {
			assert.Equal(t, ledger.StatusFailed, txn.Status)
		}
	}

	contacts, err := e.beneficiaries.List(ctx, a.user.ID, false)
	require.NoError(t, err)
	assert.Empty(t, contacts)
	assert.Empty(t, e.notifier.msgs)
}

func TestTransferPreconditions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.open(t, "+100", "Alice", "500.00")
	e.open(t, "+200", "Bob", "")

	cases := []struct {
		name string
		in   TransferInput
		want error
	}{
		{"unknown recipient", TransferInput{Recipient: identity.Lookup{Phone: "+999"}, Amount: dec("5")}, ErrRecipientNotFound},
		{"self", TransferInput{Recipient: identity.Lookup{Phone: "+100"}, Amount: dec("5")}, ErrSelfTransfer},
		{"too small", TransferInput{Recipient: identity.Lookup{Phone: "+200"}, Amount: dec("0.99")}, ErrAmountTooSmall},
		{"too large", TransferInput{Recipient: identity.Lookup{Phone: "+200"}, Amount: dec("100000.01")}, ErrAmountTooLarge},
		{"precision", TransferInput{Recipient: identity.Lookup{Phone: "+200"}, Amount: dec("1.005")}, ErrInvalidAmount},
		{"no lookup", TransferInput{Amount: dec("5")}, identity.ErrEmptyLookup},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.SenderUserID = a.user.ID
			_, err := e.svc.Transfer(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.True(t, e.balance(t, a).Equal(dec("500")))
	assert.Empty(t, e.history(t, a), "rejected before any ledger row is written")
}

func TestTransferToFrozenWalletFailsPair(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.open(t, "+100", "Alice", "50.00")
	b := e.open(t, "+200", "Bob", "")
	_, err := e.wallets.SetFrozen(ctx, b.wallet.ID, true)
	require.NoError(t, err)

	_, err = e.svc.Transfer(ctx, TransferInput{SenderUserID: a.user.ID, Recipient: identity.Lookup{Phone: "+200"}, Amount: dec("20")})
	require.ErrorIs(t, err, wallet.ErrFrozen)

	assert.True(t, e.balance(t, a).Equal(dec("50")))
	debits := e.history(t, a)
	credits := e.history(t, b)
	require.Len(t, debits, 1)
	require.Len(t, credits, 1)
	assert.Equal(t, ledger.StatusFailed, debits[0].Status)
	assert.Equal(t, ledger.StatusFailed, credits[0].Status)
}

func TestTransferPinLockout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.open(t, "+100", "Alice", "100.00")
	e.open(t, "+200", "Bob", "")
	require.NoError(t, e.pins.SetPin(ctx, a.user.ID, "1234", "1234"))

	in := TransferInput{SenderUserID: a.user.ID, Recipient: identity.Lookup{Phone: "+200"}, Amount: dec("10"), PIN: "0000"}
	_, err := e.svc.Transfer(ctx, in)
	assert.ErrorIs(t, err, pin.ErrInvalid)
	_, err = e.svc.Transfer(ctx, in)
	assert.ErrorIs(t, err, pin.ErrInvalid)
	_, err = e.svc.Transfer(ctx, in)
	assert.ErrorIs(t, err, pin.ErrLocked)

	in.PIN = "1234"
	_, err = e.svc.Transfer(ctx, in)
	assert.ErrorIs(t, err, pin.ErrLocked)
	assert.True(t, e.balance(t, a).Equal(dec("100")))
}

func TestTransferWithCorrectPin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.open(t, "+100", "Alice", "100.00")
	e.open(t, "+200", "Bob", "")
	require.NoError(t, e.pins.SetPin(ctx, a.user.ID, "1234", "1234"))

	_, err := e.svc.Transfer(ctx, TransferInput{SenderUserID: a.user.ID, Recipient: identity.Lookup{Phone: "+200"}, Amount: dec("10"), PIN: "1234"})
	require.NoError(t, err)
	assert.True(t, e.balance(t, a).Equal(dec("90")))
}

func TestConcurrentOpposingTransfersConserveMoney(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.open(t, "+100", "Alice", "1000.00")
	b := e.open(t, "+200", "Bob", "1000.00")

	const rounds = 40
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.svc.Transfer(ctx, TransferInput{SenderUserID: a.user.ID, Recipient: identity.Lookup{Phone: "+200"}, Amount: dec("7.25")})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := e.svc.Transfer(ctx, TransferInput{SenderUserID: b.user.ID, Recipient: identity.Lookup{Phone: "+100"}, Amount: dec("3.50")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	total := e.balance(t, a).Add(e.balance(t, b))
	assert.True(t, total.Equal(dec("2000")), "total %s", total)
	assert.True(t, e.balance(t, a).Equal(dec("1000").Sub(dec("7.25").Mul(decimal.NewFromInt(rounds))).Add(dec("3.50").Mul(decimal.NewFromInt(rounds)))))

	completed := 0
	for _, txn := range e.history(t, a) {
		if txn.Status == ledger.StatusCompleted {
			completed++
		}
	}
	assert.Equal(t, 2*rounds, completed)
}

func TestTransferNeverOverdrawsUnderContention(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.open(t, "+100", "Alice", "50.00")
	e.open(t, "+200", "Bob", "")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Transfer(ctx, TransferInput{SenderUserID: a.user.ID, Recipient: identity.Lookup{Phone: "+200"}, Amount: dec("10")})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, wallet.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.True(t, e.balance(t, a).IsZero())
}

// holdLock takes key in a separate unit of work and keeps it until release.
func holdLock(t *testing.T, tx store.Manager, key string) (release func()) {
	t.Helper()
	locked := make(chan struct{})
	done := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- tx.WithinTx(context.Background(), func(ctx context.Context) error {
			if err := store.Lock(ctx, key); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	select {
	case <-locked:
	case err := <-finished:
		t.Fatalf("hold %s: %v", key, err)
	}
	return func() {
		close(done)
		require.NoError(t, <-finished)
	}
}

func TestTransferBusyRollsBackWholeUnit(t *testing.T) {
	e := newEnv(t)
	a := e.open(t, "+100", "Alice", "100.00")
	b := e.open(t, "+200", "Bob", "5.00")

	release := holdLock(t, e.tx, wallet.LockKey(b.wallet.ID))
	_, err := e.svc.Transfer(context.Background(), TransferInput{
		SenderUserID: a.user.ID,
		Recipient:    identity.Lookup{Phone: "+200"},
		Amount:       dec("10.00"),
	})
	release()

	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrBusy), "expected busy, got %v", err)
	assert.True(t, e.balance(t, a).Equal(dec("100.00")))
	assert.True(t, e.balance(t, b).Equal(dec("5.00")))
	assert.Empty(t, e.history(t, a), "no ledger rows may survive a busy unit")
	assert.Empty(t, e.history(t, b), "no ledger rows may survive a busy unit")
	assert.Empty(t, e.notifier.msgs)
}
