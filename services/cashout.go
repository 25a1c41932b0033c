package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"coin-vault-service/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrBelowCashoutMinimum  = errors.New("below cashout minimum")
	ErrInvalidCashoutAmount = errors.New("cashout amount is below the gateway threshold")
	ErrInsufficientCoins    = errors.New("not enough coins in vault")
)

var printer = message.NewPrinter(language.English)

// CashoutMinimumError carries the threshold for the user-facing message.
type CashoutMinimumError struct {
	MinCoins int64
}

func (e *CashoutMinimumError) Error() string {
	return printer.Sprintf("minimum cashout is %d coins", e.MinCoins)
}

func (e *CashoutMinimumError) Is(target error) bool { return target == ErrBelowCashoutMinimum }

// CashoutQuote is what the payout collaborator needs to create an order.
// AmountMinor is in the currency's minor unit (paise for INR).
type CashoutQuote struct {
	Coins       int64  `json:"coins"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Display     string `json:"display"`
}

// QuoteCashout converts a coin balance into a payout amount. It does not
// debit the ledger.
func QuoteCashout(cfg models.CashoutConfig, coins int64) (CashoutQuote, error) {
	if coins <= 0 {
		return CashoutQuote{}, ErrInvalidCashoutAmount
	}
	if coins < cfg.MinCoins {
		return CashoutQuote{}, &CashoutMinimumError{MinCoins: cfg.MinCoins}
	}
	amount := int64(math.Round(float64(coins) * cfg.ExchangeRate * 100))
	if amount <= 0 {
		return CashoutQuote{}, ErrInvalidCashoutAmount
	}
	return CashoutQuote{
		Coins:       coins,
		AmountMinor: amount,
		Currency:    cfg.Currency,
		Display:     printer.Sprintf("%d coins = %.2f %s", coins, float64(amount)/100, cfg.Currency),
	}, nil
}

// QuoteCashout quotes coins from the user's current balance. coins <= 0
// quotes the whole balance.
func (e *RewardEngine) QuoteCashout(ctx context.Context, userID string, coins int64) (CashoutQuote, error) {
	if missingUser(userID) {
		return CashoutQuote{}, ErrInvalidUser
	}
	rewards, err := e.Catalog.CoinRewards(ctx)
	if err != nil {
		return CashoutQuote{}, fmt.Errorf("load coin rewards: %w", err)
	}
	snap, err := e.Store.Snapshot(ctx, userID)
	if err != nil {
		return CashoutQuote{}, fmt.Errorf("read vault snapshot: %w", err)
	}
	if coins <= 0 {
		coins = snap.Coins
	}
	if coins > snap.Coins {
		return CashoutQuote{}, ErrInsufficientCoins
	}
	return QuoteCashout(rewards.Cashout, coins)
}
