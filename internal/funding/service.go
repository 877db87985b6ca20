package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/analytics"
	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/pin"
	"github.com/congo-pay/wallet_ledger/internal/store"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Method is how deposited funds are collected.
type Method string

const (
	MethodCard         Method = "card"
	MethodBankTransfer Method = "bank_transfer"
	MethodBonus        Method = "bonus"
)

// StatusApproved is the acquirer status that lets a deposit proceed.
const StatusApproved = "approved"

var (
	ErrAmountTooSmall   = apperr.New(apperr.KindValidation, "amount_too_small", "amount is below the minimum")
	ErrAmountTooLarge   = apperr.New(apperr.KindValidation, "amount_too_large", "amount is above the maximum")
	ErrInvalidAmount    = apperr.New(apperr.KindValidation, "invalid_amount", "amount must be positive with at most two decimal places")
	ErrInvalidMethod    = apperr.New(apperr.KindValidation, "invalid_payment_method", "payment method must be card, bank_transfer or bonus")
	ErrInvalidBillType  = apperr.New(apperr.KindValidation, "invalid_bill_type", "unknown bill type")
	ErrMissingBillField = apperr.New(apperr.KindValidation, "missing_bill_field", "bill payment is missing a required field")
	ErrDeclined         = apperr.New(apperr.KindValidation, "payment_declined", "payment was declined by the processor")
)

// Limits bounds a single deposit.
type Limits struct {
	MinDeposit decimal.Decimal
	MaxDeposit decimal.Decimal
}

// DefaultLimits allows deposits from 10.00 to 500,000.00.
func DefaultLimits() Limits {
	return Limits{MinDeposit: decimal.NewFromInt(10), MaxDeposit: decimal.NewFromInt(500_000)}
}

// Deps are the collaborators of the funding engine. Analytics and Notifier
// are optional; Acquirer defaults to StaticAcquirer.
type Deps struct {
	Tx        store.Manager
	Wallets   *wallet.Service
	Ledger    *ledger.Service
	Pins      *pin.Service
	Analytics *analytics.Service
	Notifier  notification.Notifier
	Acquirer  Acquirer
	Logger    *slog.Logger
}

// Service credits wallets from outside money and debits them for bills.
type Service struct {
	Deps
	limits Limits
}

// NewService prepares a funding service.
func NewService(deps Deps, limits Limits) *Service {
	if deps.Acquirer == nil {
		deps.Acquirer = StaticAcquirer{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{Deps: deps, limits: limits}
}

// DepositInput captures a request to add money.
type DepositInput struct {
	UserID      string
	Amount      decimal.Decimal
	Method      Method
	Description string
}

// BillInput captures a bill payment. Which target field is required
// depends on BillType.
type BillInput struct {
	UserID          string
	BillType        ledger.BillType
	Amount          decimal.Decimal
	PhoneNumber     string
	MeterNumber     string
	SmartcardNumber string
	PIN             string
}

// Result describes a completed deposit or bill payment.
type Result struct {
	Transaction       ledger.Transaction
	NewBalance        decimal.Decimal
	AcquirerReference string
}

// Deposit authorizes the funds with the acquirer and credits the wallet.
func (s *Service) Deposit(ctx context.Context, in DepositInput) (Result, error) {
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return Result{}, ErrInvalidAmount
	}
	if in.Amount.LessThan(s.limits.MinDeposit) {
		return Result{}, fmt.Errorf("%w: minimum deposit is %s", ErrAmountTooSmall, s.limits.MinDeposit.StringFixed(2))
	}
	if in.Amount.GreaterThan(s.limits.MaxDeposit) {
		return Result{}, fmt.Errorf("%w: maximum deposit is %s", ErrAmountTooLarge, s.limits.MaxDeposit.StringFixed(2))
	}
	switch in.Method {
	case MethodCard, MethodBankTransfer, MethodBonus:
	default:
		return Result{}, ErrInvalidMethod
	}

	w, err := s.Wallets.GetByOwner(ctx, in.UserID)
	if err != nil {
		return Result{}, err
	}
	if err := w.Usable(); err != nil {
		return Result{}, err
	}

	decision, err := s.Acquirer.Authorize(ctx, Authorization{UserID: in.UserID, Method: in.Method, Amount: in.Amount, Currency: w.Currency})
	if err != nil {
		return Result{}, err
	}
	if decision.Status != StatusApproved {
		return Result{}, fmt.Errorf("%w: %s", ErrDeclined, decision.Status)
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = "Deposit via " + strings.ReplaceAll(string(in.Method), "_", " ")
	}
	txn, balance, err := s.post(ctx, w, ledger.PendingEntry{
		Type:              ledger.TypeCredit,
		Category:          ledger.CategoryDeposit,
		Amount:            in.Amount,
		RecipientWalletID: w.ID,
		Description:       description,
		Metadata: map[string]string{
			"payment_method":     string(in.Method),
			"acquirer_reference": decision.Reference,
		},
	})
	if err != nil {
		return Result{}, err
	}

	s.after(context.WithoutCancel(ctx), in.UserID, w.ID, txn, notification.KindDeposit,
		fmt.Sprintf("%s %s added to your wallet", txn.Amount.StringFixed(2), txn.Currency))
	return Result{Transaction: txn, NewBalance: balance, AcquirerReference: decision.Reference}, nil
}

var billLabels = map[ledger.BillType]string{
	ledger.BillAirtime:     "Airtime",
	ledger.BillData:        "Data",
	ledger.BillElectricity: "Electricity",
	ledger.BillCableTV:     "Cable TV",
}

// PayBill debits the wallet for a bill. A supplied PIN must verify before
// any balance is touched.
func (s *Service) PayBill(ctx context.Context, in BillInput) (Result, error) {
	if in.PIN != "" {
		if err := s.Pins.Verify(ctx, in.UserID, in.PIN); err != nil {
			return Result{}, err
		}
	}
	if !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Round(2)) {
		return Result{}, ErrInvalidAmount
	}
	if !in.BillType.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidBillType, in.BillType)
	}
	metadata, err := billMetadata(in)
	if err != nil {
		return Result{}, err
	}

	w, err := s.Wallets.GetByOwner(ctx, in.UserID)
	if err != nil {
		return Result{}, err
	}

	label := billLabels[in.BillType]
	txn, balance, err := s.post(ctx, w, ledger.PendingEntry{
		Type:           ledger.TypeDebit,
		Category:       ledger.CategoryBillPayment,
		BillType:       in.BillType,
		Amount:         in.Amount,
		SenderWalletID: w.ID,
		Description:    label + " payment",
		Metadata:       metadata,
	})
	if err != nil {
		return Result{}, err
	}

	s.after(context.WithoutCancel(ctx), in.UserID, w.ID, txn, notification.KindBillPayment,
		fmt.Sprintf("%s payment of %s %s successful", label, txn.Amount.StringFixed(2), txn.Currency))
	return Result{Transaction: txn, NewBalance: balance}, nil
}

func billMetadata(in BillInput) (map[string]string, error) {
	md := make(map[string]string)
	put := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			md[key] = v
		}
	}
	put("phone_number", in.PhoneNumber)
	put("meter_number", in.MeterNumber)
	put("smartcard_number", in.SmartcardNumber)

	var required string
	switch in.BillType {
	case ledger.BillAirtime, ledger.BillData:
		required = "phone_number"
	case ledger.BillElectricity:
		required = "meter_number"
	case ledger.BillCableTV:
		required = "smartcard_number"
	}
	if _, ok := md[required]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingBillField, required)
	}
	return md, nil
}

// post writes entry as pending under the wallet's lock, then applies it in
// a savepoint. A failed savepoint leaves the row failed and the balance
// unchanged; the row is committed either way.
func (s *Service) post(ctx context.Context, w wallet.Wallet, entry ledger.PendingEntry) (ledger.Transaction, decimal.Decimal, error) {
	var (
		done    ledger.Transaction
		balance decimal.Decimal
		failure error
	)
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.Wallets.LockAndRead(ctx, w.ID)
		if err != nil {
			return err
		}
		entry.WalletID = locked.ID
		entry.Currency = locked.Currency
		entry.BalanceBefore = locked.Balance
		txn, err := s.Ledger.RecordPending(ctx, entry)
		if err != nil {
			return err
		}

		failure = s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := locked.Usable(); err != nil {
				return err
			}
			after, err := s.Wallets.ApplyDelta(ctx, locked.ID, txn.Signed())
			if err != nil {
				return err
			}
			completed, err := s.Ledger.MarkCompleted(ctx, txn, after.Balance)
			if err != nil {
				return err
			}
			done, balance = completed, after.Balance
			return nil
		})
		if failure == nil || errors.Is(failure, store.ErrBusy) {
			return failure
		}
		return s.Ledger.MarkFailed(ctx, txn.ID)
	})
	if err != nil {
		return ledger.Transaction{}, decimal.Decimal{}, err
	}
	if failure != nil {
		s.Logger.Info("funding declined", "wallet_id", w.ID, "category", entry.Category, "error", failure)
		return ledger.Transaction{}, decimal.Decimal{}, failure
	}
	return done, balance, nil
}

func (s *Service) after(ctx context.Context, userID, walletID string, txn ledger.Transaction, kind, body string) {
	log := s.Logger.With("reference", txn.Reference)
	if s.Analytics != nil {
		at := time.Now()
		if txn.CompletedAt != nil {
			at = *txn.CompletedAt
		}
		if err := s.Analytics.RecordEvent(ctx, analytics.Event{UserID: userID, WalletID: walletID, At: at}); err != nil {
			log.Warn("analytics update failed", "error", err)
		}
	}
	if s.Notifier != nil {
		if err := s.Notifier.Send(ctx, notification.Message{Kind: kind, Destination: userID, Reference: txn.Reference, Body: body}); err != nil {
			log.Warn("notification failed", "kind", kind, "error", err)
		}
	}
}
