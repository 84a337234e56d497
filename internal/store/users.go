package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

var userColumns = []string{"id", "hearts", "zaps", "xp", "last_heart_reset", "created_at"}

// EnsureUser creates the user row with the given starting balances if it
// does not exist yet. Existing rows are left untouched.
func (c *Conn) EnsureUser(ctx context.Context, id string, hearts, zaps int, now time.Time) error {
	query, args := c.builder().Insert("users").
		Columns(userColumns...).
		Values(id, hearts, zaps, 0, Millis(now), Millis(now)).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("ensure user %s: %w", id, err)
	}
	return nil
}

// GetUser returns the user's balance row or ErrNotFound.
func (c *Conn) GetUser(ctx context.Context, id string) (*User, error) {
	query, args := c.builder().Select(userColumns...).
		From(entsql.Table("users")).
		Where(entsql.EQ("id", id)).
		Query()

	var u *User
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var (
			row              User
			lastReset, creat int64
		)
		if err := rows.Scan(&row.ID, &row.Hearts, &row.Zaps, &row.XP, &lastReset, &creat); err != nil {
			return err
		}
		row.LastHeartReset = FromMillis(lastReset)
		row.CreatedAt = FromMillis(creat)
		u = &row
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

// UsersBelowHearts returns the ids of users with fewer than max hearts.
func (c *Conn) UsersBelowHearts(ctx context.Context, max int) ([]string, error) {
	query, args := c.builder().Select("id").
		From(entsql.Table("users")).
		Where(entsql.LT("hearts", max)).
		OrderBy("id").
		Query()

	var ids []string
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query users below hearts: %w", err)
	}
	return ids, nil
}

// SetHeartsIfUnchanged is a compare-and-set of the heart counter and the
// regeneration clock. It reports false when another writer changed either
// value since they were read.
func (c *Conn) SetHeartsIfUnchanged(ctx context.Context, id string, oldHearts int, oldReset time.Time, newHearts int, newReset time.Time) (bool, error) {
	query, args := c.builder().Update("users").
		Set("hearts", newHearts).
		Set("last_heart_reset", Millis(newReset)).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("hearts", oldHearts),
			entsql.EQ("last_heart_reset", Millis(oldReset)),
		)).
		Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("set hearts: %w", err)
	}
	return n == 1, nil
}

// DecrementHeart removes one heart when at least one is left. It reports
// false when the balance was already zero.
func (c *Conn) DecrementHeart(ctx context.Context, id string) (bool, error) {
	query, args := c.builder().Update("users").
		Add("hearts", -1).
		Where(entsql.And(entsql.EQ("id", id), entsql.GT("hearts", 0))).
		Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("decrement heart: %w", err)
	}
	return n == 1, nil
}

// IncrementHeart adds one heart when the balance is below max. It reports
// false when the balance was already at max.
func (c *Conn) IncrementHeart(ctx context.Context, id string, max int) (bool, error) {
	query, args := c.builder().Update("users").
		Add("hearts", 1).
		Where(entsql.And(entsql.EQ("id", id), entsql.LT("hearts", max))).
		Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("increment heart: %w", err)
	}
	return n == 1, nil
}

// ResetHeartClock moves the regeneration clock to now.
func (c *Conn) ResetHeartClock(ctx context.Context, id string, now time.Time) error {
	query, args := c.builder().Update("users").
		Set("last_heart_reset", Millis(now)).
		Where(entsql.EQ("id", id)).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("reset heart clock: %w", err)
	}
	return nil
}

// DebitZaps subtracts amount when the balance covers it. It reports false
// when funds are insufficient.
func (c *Conn) DebitZaps(ctx context.Context, id string, amount int) (bool, error) {
	query, args := c.builder().Update("users").
		Add("zaps", -amount).
		Where(entsql.And(entsql.EQ("id", id), entsql.GTE("zaps", amount))).
		Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("debit zaps: %w", err)
	}
	return n == 1, nil
}

// CreditZaps adds amount to the currency balance.
func (c *Conn) CreditZaps(ctx context.Context, id string, amount int) error {
	query, args := c.builder().Update("users").
		Add("zaps", amount).
		Where(entsql.EQ("id", id)).
		Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("credit zaps: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("credit zaps: user %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddXP adds experience points to the user.
func (c *Conn) AddXP(ctx context.Context, id string, xp int) error {
	query, args := c.builder().Update("users").
		Add("xp", xp).
		Where(entsql.EQ("id", id)).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("add xp: %w", err)
	}
	return nil
}

// TopByXP returns the users with the most experience, highest first.
func (c *Conn) TopByXP(ctx context.Context, limit int) ([]User, error) {
	sel := c.builder().Select(userColumns...).
		From(entsql.Table("users")).
		OrderBy(entsql.Desc("xp"), "id")
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()

	var users []User
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var (
			u                User
			lastReset, creat int64
		)
		if err := rows.Scan(&u.ID, &u.Hearts, &u.Zaps, &u.XP, &lastReset, &creat); err != nil {
			return err
		}
		u.LastHeartReset = FromMillis(lastReset)
		u.CreatedAt = FromMillis(creat)
		users = append(users, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query top users: %w", err)
	}
	return users, nil
}
