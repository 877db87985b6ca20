package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/analytics"
	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/beneficiary"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/pin"
	"github.com/congo-pay/wallet_ledger/internal/store"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

var (
	ErrRecipientNotFound = apperr.New(apperr.KindNotFound, "recipient_not_found", "recipient not found")
	ErrSelfTransfer      = apperr.New(apperr.KindValidation, "self_transfer_not_allowed", "cannot transfer to yourself")
	ErrAmountTooSmall    = apperr.New(apperr.KindValidation, "amount_too_small", "amount is below the minimum")
	ErrAmountTooLarge    = apperr.New(apperr.KindValidation, "amount_too_large", "amount is above the maximum")
	ErrInvalidAmount     = apperr.New(apperr.KindValidation, "invalid_amount", "amount must have at most two decimal places")
	ErrCurrencyMismatch  = apperr.New(apperr.KindValidation, "currency_mismatch", "wallets use different currencies")
)

// Limits bounds the amount of a single transfer.
type Limits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// DefaultLimits allows transfers from 1.00 to 100,000.00.
func DefaultLimits() Limits {
	return Limits{Min: decimal.NewFromInt(1), Max: decimal.NewFromInt(100_000)}
}

func (l Limits) check(amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	if amount.LessThan(l.Min) {
		return fmt.Errorf("%w: minimum is %s", ErrAmountTooSmall, l.Min.StringFixed(2))
	}
	if amount.GreaterThan(l.Max) {
		return fmt.Errorf("%w: maximum is %s", ErrAmountTooLarge, l.Max.StringFixed(2))
	}
	return nil
}

// Deps are the collaborators of the transfer engine. Beneficiaries,
// Analytics and Notifier are optional.
type Deps struct {
	Tx            store.Manager
	Wallets       *wallet.Service
	Ledger        *ledger.Service
	Pins          *pin.Service
	Users         *identity.Service
	Beneficiaries *beneficiary.Service
	Analytics     *analytics.Service
	Notifier      notification.Notifier
	Logger        *slog.Logger
}

// Service moves money between two wallets.
type Service struct {
	Deps
	limits Limits
}

// NewService constructs the transfer engine.
func NewService(deps Deps, limits Limits) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{Deps: deps, limits: limits}
}

// TransferInput captures the data needed to move funds between users.
type TransferInput struct {
	SenderUserID string
	Recipient    identity.Lookup
	Amount       decimal.Decimal
	Narration    string
	PIN          string
}

// TransferResult describes a completed transfer.
type TransferResult struct {
	Debit         ledger.Transaction
	Credit        ledger.Transaction
	SenderBalance decimal.Decimal
	Recipient     identity.User
}

// Transfer debits the sender and credits the recipient atomically. Both
// wallets are locked in ascending id order. The pending pair is written
// first; if a check or write fails afterwards the pair is committed as
// failed and no balance changes.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	recipient, err := s.Users.Resolve(ctx, in.Recipient)
	if errors.Is(err, identity.ErrNotFound) {
		return TransferResult{}, ErrRecipientNotFound
	}
	if err != nil {
		return TransferResult{}, err
	}
	if recipient.ID == in.SenderUserID {
		return TransferResult{}, ErrSelfTransfer
	}
	if err := s.limits.check(in.Amount); err != nil {
		return TransferResult{}, err
	}
	if in.PIN != "" {
		if err := s.Pins.Verify(ctx, in.SenderUserID, in.PIN); err != nil {
			return TransferResult{}, err
		}
	}

	from, err := s.Wallets.GetByOwner(ctx, in.SenderUserID)
	if err != nil {
		return TransferResult{}, err
	}
	to, err := s.Wallets.GetByOwner(ctx, recipient.ID)
	if err != nil {
		return TransferResult{}, err
	}

	amount := in.Amount.Round(2)
	narration := strings.TrimSpace(in.Narration)
	correlationID := uuid.NewString()

	var (
		result  = TransferResult{Recipient: recipient}
		failure error
	)
	err = s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.Wallets.LockAll(ctx, from.ID, to.ID)
		if err != nil {
			return err
		}
		src, dst := locked[from.ID], locked[to.ID]

		debit, err := s.Ledger.RecordPending(ctx, ledger.PendingEntry{
			WalletID:          src.ID,
			CorrelationID:     correlationID,
			Type:              ledger.TypeDebit,
			Category:          ledger.CategoryTransfer,
			Amount:            amount,
			Currency:          src.Currency,
			SenderWalletID:    src.ID,
			RecipientWalletID: dst.ID,
			BalanceBefore:     src.Balance,
			Description:       describe("Transfer to", recipient),
			Narration:         narration,
		})
		if err != nil {
			return err
		}
		credit, err := s.Ledger.RecordPending(ctx, ledger.PendingEntry{
			WalletID:          dst.ID,
			CorrelationID:     correlationID,
			Type:              ledger.TypeCredit,
			Category:          ledger.CategoryTransfer,
			Amount:            amount,
			Currency:          dst.Currency,
			SenderWalletID:    src.ID,
			RecipientWalletID: dst.ID,
			BalanceBefore:     dst.Balance,
			Description:       "Transfer received",
			Narration:         narration,
		})
		if err != nil {
			return err
		}

		failure = s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := src.Usable(); err != nil {
				return err
			}
			if err := dst.Usable(); err != nil {
				return err
			}
			if src.Currency != dst.Currency {
				return ErrCurrencyMismatch
			}
			if src.Balance.LessThan(amount) {
				return fmt.Errorf("%w: balance %s, amount %s", wallet.ErrInsufficientFunds, src.Balance.StringFixed(2), amount.StringFixed(2))
			}
			srcAfter, err := s.Wallets.ApplyDelta(ctx, src.ID, amount.Neg())
			if err != nil {
				return err
			}
			dstAfter, err := s.Wallets.ApplyDelta(ctx, dst.ID, amount)
			if err != nil {
				return err
			}
			doneDebit, err := s.Ledger.MarkCompleted(ctx, debit, srcAfter.Balance)
			if err != nil {
				return err
			}
			doneCredit, err := s.Ledger.MarkCompleted(ctx, credit, dstAfter.Balance)
			if err != nil {
				return err
			}
			result.Debit, result.Credit, result.SenderBalance = doneDebit, doneCredit, srcAfter.Balance
			return nil
		})
		if failure == nil {
			return nil
		}
		if errors.Is(failure, store.ErrBusy) {
			return failure
		}
		if err := s.Ledger.MarkFailed(ctx, debit.ID); err != nil {
			return err
		}
		return s.Ledger.MarkFailed(ctx, credit.ID)
	})
	if err != nil {
		return TransferResult{}, err
	}
	if failure != nil {
		s.Logger.Info("transfer declined", "sender", in.SenderUserID, "recipient", recipient.ID, "correlation_id", correlationID, "error", failure)
		return TransferResult{}, failure
	}

	s.afterTransfer(context.WithoutCancel(ctx), in.SenderUserID, from.ID, recipient, to.ID, result)
	return result, nil
}

// afterTransfer runs the derived updates once the money has moved. Their
// failures are logged; analytics can be rebuilt from the ledger.
func (s *Service) afterTransfer(ctx context.Context, senderID, senderWalletID string, recipient identity.User, recipientWalletID string, res TransferResult) {
	log := s.Logger.With("reference", res.Debit.Reference, "correlation_id", res.Debit.CorrelationID)

	if s.Beneficiaries != nil {
		if err := s.Beneficiaries.RecordTransfer(ctx, senderID, recipient.ID, res.Debit.Amount); err != nil {
			log.Warn("beneficiary update failed", "error", err)
		}
	}
	if s.Analytics != nil {
		for _, ev := range []analytics.Event{
			{UserID: senderID, WalletID: senderWalletID, At: completedAt(res.Debit)},
			{UserID: recipient.ID, WalletID: recipientWalletID, At: completedAt(res.Credit)},
		} {
			if err := s.Analytics.RecordEvent(ctx, ev); err != nil {
				log.Warn("analytics update failed", "user_id", ev.UserID, "error", err)
			}
		}
	}
	if s.Notifier != nil {
		amount := res.Debit.Amount.StringFixed(2) + " " + res.Debit.Currency
		msgs := []notification.Message{
			{Kind: notification.KindTransferSent, Destination: senderID, Reference: res.Debit.Reference,
				Body: fmt.Sprintf("You sent %s to %s", amount, displayName(recipient))},
			{Kind: notification.KindTransferReceived, Destination: recipient.ID, Reference: res.Credit.Reference,
				Body: fmt.Sprintf("You received %s", amount)},
		}
		for _, m := range msgs {
			if err := s.Notifier.Send(ctx, m); err != nil {
				log.Warn("notification failed", "kind", m.Kind, "error", err)
			}
		}
	}
}

func completedAt(t ledger.Transaction) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.CreatedAt
}

func describe(prefix string, u identity.User) string {
	return prefix + " " + displayName(u)
}

func displayName(u identity.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.AccountNumber
}
