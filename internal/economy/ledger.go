package economy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/store"
)

// Ledger entry types.
const (
	TxRegeneration     = "regeneration"
	TxIncorrectAnswer  = "incorrect_answer"
	TxPurchase         = "purchase"
	TxHeartPurchase    = "heart_purchase"
	TxAdReward         = "ad_reward"
	TxCompletionReward = "completion_reward"
)

// casRetries bounds how often a regeneration retries after losing a
// compare-and-set race.
const casRetries = 3

// Regen is the outcome of RegenerateHearts.
type Regen struct {
	Changed bool
	Hearts  int
	Added   int
}

// Balance is a snapshot of a user's hearts and ZAPs.
type Balance struct {
	Hearts    int   `json:"hearts"`
	MaxHearts int   `json:"max_hearts"`
	Zaps      int   `json:"zaps"`
	XP        int64 `json:"xp"`

	// NextHeartAt is when the next heart regenerates. Zero at full hearts.
	NextHeartAt time.Time `json:"next_heart_at"`
}

// HistoryEntry is one ledger row tagged with the ledger it came from.
type HistoryEntry struct {
	Ledger store.LedgerKind
	store.LedgerEntry
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger applies balance changes to the store. Counters on the user row
// are only changed by conditional updates, and every change is paired with
// an append-only ledger entry in the same transaction.
type Ledger struct {
	store *store.Store
	cfg   Config
	log   logrus.FieldLogger
	now   func() time.Time

	// afterDebit runs between the ZAP debit and the heart credit of a
	// purchase. Returning an error aborts the purchase.
	afterDebit func() error
}

// NewLedger creates a Ledger on top of s.
func NewLedger(s *store.Store, cfg Config, log logrus.FieldLogger, opts ...Option) *Ledger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	l := &Ledger{
		store: s,
		cfg:   cfg.withDefaults(),
		log:   log.WithField("component", "economy"),
		now:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Config returns the effective economy configuration.
func (l *Ledger) Config() Config {
	return l.cfg
}

// EnsureUser creates the user with starting balances if missing.
func (l *Ledger) EnsureUser(ctx context.Context, userID string) error {
	return l.store.EnsureUser(ctx, userID, l.cfg.StartingHearts, l.cfg.StartingZaps, l.now())
}

// RegenerateHearts credits one heart per elapsed HeartInterval since the
// last reset, capped at MaxHearts. Repeated calls within one interval are
// no-ops.
func (l *Ledger) RegenerateHearts(ctx context.Context, userID string) (Regen, error) {
	for i := 0; i < casRetries; i++ {
		var (
			res  Regen
			lost bool
		)
		err := l.store.WithTx(ctx, func(tx *store.Conn) error {
			u, err := tx.GetUser(ctx, userID)
			if err != nil {
				return err
			}
			res.Hearts = u.Hearts
			if u.Hearts >= l.cfg.MaxHearts {
				return nil
			}

			now := l.now()
			earned := int(now.Sub(u.LastHeartReset) / l.cfg.HeartInterval)
			if earned <= 0 {
				return nil
			}
			newHearts := min(u.Hearts+earned, l.cfg.MaxHearts)
			delta := newHearts - u.Hearts

			ok, err := tx.SetHeartsIfUnchanged(ctx, userID, u.Hearts, u.LastHeartReset, newHearts, now)
			if err != nil {
				return err
			}
			if !ok {
				lost = true
				return nil
			}
			_, err = tx.AppendLedgerEntry(ctx, store.LedgerHearts, store.LedgerEntry{
				UserID:    userID,
				Type:      TxRegeneration,
				Amount:    delta,
				Reason:    fmt.Sprintf("regenerated %d heart(s)", delta),
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
			res = Regen{Changed: true, Hearts: newHearts, Added: delta}
			return nil
		})
		if err != nil {
			return Regen{}, fmt.Errorf("regenerate hearts: %w", err)
		}
		if lost {
			continue
		}
		if res.Changed {
			l.log.WithFields(logrus.Fields{
				"user_id": userID,
				"added":   res.Added,
				"hearts":  res.Hearts,
			}).Debug("hearts regenerated")
		}
		return res, nil
	}
	return Regen{}, fmt.Errorf("regenerate hearts: concurrent update for user %s", userID)
}

// DecrementHeartOnFailure removes one heart for an incorrect answer and
// returns the remaining count. It fails with ErrInsufficientResource when
// the balance is already zero. Dropping from a full balance starts the
// regeneration clock.
func (l *Ledger) DecrementHeartOnFailure(ctx context.Context, userID, attemptID string) (int, error) {
	var hearts int
	err := l.store.WithTx(ctx, func(tx *store.Conn) error {
		var err error
		hearts, err = l.DecrementHeartTx(ctx, tx, userID, attemptID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientResource) {
			return 0, err
		}
		return 0, fmt.Errorf("decrement heart: %w", err)
	}
	return hearts, nil
}

// DecrementHeartTx is DecrementHeartOnFailure inside a caller-owned
// transaction. On ErrInsufficientResource nothing has been written.
func (l *Ledger) DecrementHeartTx(ctx context.Context, tx *store.Conn, userID, attemptID string) (int, error) {
	u, err := tx.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u.Hearts <= 0 {
		return 0, ErrInsufficientResource
	}

	ok, err := tx.DecrementHeart(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrInsufficientResource
	}

	now := l.now()
	if u.Hearts >= l.cfg.MaxHearts {
		if err := tx.ResetHeartClock(ctx, userID, now); err != nil {
			return 0, err
		}
	}
	_, err = tx.AppendLedgerEntry(ctx, store.LedgerHearts, store.LedgerEntry{
		UserID:    userID,
		Type:      TxIncorrectAnswer,
		Amount:    -1,
		Reason:    "incorrect answer",
		AttemptID: attemptID,
		CreatedAt: now,
	})
	if err != nil {
		return 0, err
	}

	after, err := tx.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return after.Hearts, nil
}

// PurchaseHeart exchanges HeartPrice ZAPs for one heart. The debit, the
// credit and both ledger entries commit together or not at all.
func (l *Ledger) PurchaseHeart(ctx context.Context, userID string) (Balance, error) {
	var bal Balance
	err := l.store.WithTx(ctx, func(tx *store.Conn) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u.Hearts >= l.cfg.MaxHearts {
			return ErrAtCapacity
		}
		if u.Zaps < l.cfg.HeartPrice {
			return ErrInsufficientFunds
		}

		now := l.now()
		ok, err := tx.DebitZaps(ctx, userID, l.cfg.HeartPrice)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientFunds
		}
		_, err = tx.AppendLedgerEntry(ctx, store.LedgerCurrency, store.LedgerEntry{
			UserID:    userID,
			Type:      TxHeartPurchase,
			Amount:    -l.cfg.HeartPrice,
			Reason:    "bought one heart",
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		if l.afterDebit != nil {
			if err := l.afterDebit(); err != nil {
				return err
			}
		}

		ok, err = tx.IncrementHeart(ctx, userID, l.cfg.MaxHearts)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAtCapacity
		}
		_, err = tx.AppendLedgerEntry(ctx, store.LedgerHearts, store.LedgerEntry{
			UserID:    userID,
			Type:      TxPurchase,
			Amount:    1,
			Reason:    fmt.Sprintf("bought for %d ZAPs", l.cfg.HeartPrice),
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		after, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		bal = l.balanceOf(after)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAtCapacity) || errors.Is(err, ErrInsufficientFunds) {
			return Balance{}, err
		}
		return Balance{}, fmt.Errorf("purchase heart: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"user_id": userID,
		"hearts":  bal.Hearts,
		"zaps":    bal.Zaps,
	}).Info("heart purchased")
	return bal, nil
}

// CreditCurrency adds ZAPs and returns the new balance.
func (l *Ledger) CreditCurrency(ctx context.Context, userID, txType string, amount int, reason, attemptID string) (int, error) {
	var zaps int
	err := l.store.WithTx(ctx, func(tx *store.Conn) error {
		if err := l.CreditCurrencyTx(ctx, tx, userID, txType, amount, reason, attemptID); err != nil {
			return err
		}
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		zaps = u.Zaps
		return nil
	})
	if err != nil {
		return 0, err
	}
	return zaps, nil
}

// CreditCurrencyTx is CreditCurrency inside a caller-owned transaction.
func (l *Ledger) CreditCurrencyTx(ctx context.Context, tx *store.Conn, userID, txType string, amount int, reason, attemptID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := tx.CreditZaps(ctx, userID, amount); err != nil {
		return fmt.Errorf("credit currency: %w", err)
	}
	_, err := tx.AppendLedgerEntry(ctx, store.LedgerCurrency, store.LedgerEntry{
		UserID:    userID,
		Type:      txType,
		Amount:    amount,
		Reason:    reason,
		AttemptID: attemptID,
		CreatedAt: l.now(),
	})
	if err != nil {
		return fmt.Errorf("credit currency: %w", err)
	}
	return nil
}

// ClaimAdReward credits the ad reward, honouring the daily cap. The credit
// is written before the day's claims are counted, so the user row is
// locked and a concurrent claim sees this one or waits for it.
func (l *Ledger) ClaimAdReward(ctx context.Context, userID string) (int, error) {
	var zaps int
	err := l.store.WithTx(ctx, func(tx *store.Conn) error {
		if err := l.CreditCurrencyTx(ctx, tx, userID, TxAdReward, l.cfg.AdReward, "watched an ad", ""); err != nil {
			return err
		}
		if l.cfg.AdDailyLimit > 0 {
			claimed, err := l.adClaimsToday(ctx, tx, userID)
			if err != nil {
				return err
			}
			if claimed > l.cfg.AdDailyLimit {
				return ErrAdLimitReached
			}
		}
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		zaps = u.Zaps
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAdLimitReached) {
			return 0, err
		}
		return 0, fmt.Errorf("claim ad reward: %w", err)
	}
	return zaps, nil
}

// adClaimsToday counts ad rewards credited since midnight UTC, including
// one written earlier in tx.
func (l *Ledger) adClaimsToday(ctx context.Context, tx *store.Conn, userID string) (int, error) {
	now := l.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	entries, err := tx.LedgerEntries(ctx, store.LedgerCurrency, userID, store.QueryOpts{From: dayStart})
	if err != nil {
		return 0, err
	}
	claimed := 0
	for _, e := range entries {
		if e.Type == TxAdReward {
			claimed++
		}
	}
	return claimed, nil
}

// Balance returns the user's current balances.
func (l *Ledger) Balance(ctx context.Context, userID string) (Balance, error) {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return l.balanceOf(u), nil
}

// History returns the newest entries of both ledgers merged by sequence.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for _, kind := range []store.LedgerKind{store.LedgerHearts, store.LedgerCurrency} {
		entries, err := l.store.LedgerEntries(ctx, kind, userID, store.QueryOpts{Limit: limit})
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			out = append(out, HistoryEntry{Ledger: kind, LedgerEntry: e})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *Ledger) balanceOf(u *store.User) Balance {
	b := Balance{
		Hearts:    u.Hearts,
		MaxHearts: l.cfg.MaxHearts,
		Zaps:      u.Zaps,
		XP:        u.XP,
	}
	if u.Hearts < l.cfg.MaxHearts {
		b.NextHeartAt = u.LastHeartReset.Add(l.cfg.HeartInterval)
	}
	return b
}
