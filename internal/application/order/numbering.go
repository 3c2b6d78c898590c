package order

import (
	"context"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
)

const maxNumberAttempts = 5

// Numberer issues PREFIX + YYYYMMDD + NNNN order numbers, skipping any already in use.
type Numberer struct {
	seq    domain.Sequencer
	orders domain.Repository
	prefix string
}

func NewNumberer(seq domain.Sequencer, orders domain.Repository, prefix string) *Numberer {
	return &Numberer{seq: seq, orders: orders, prefix: prefix}
}

func (n *Numberer) Next(ctx context.Context, now time.Time) (string, error) {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		seq, err := n.seq.Next(ctx, domain.DayKey(now))
		if err != nil {
			return "", fmt.Errorf("order: next sequence: %w", err)
		}
		number, err := domain.FormatNumber(n.prefix, now, seq)
		if err != nil {
			return "", err
		}
		taken, err := n.orders.NumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("order: check number: %w", err)
		}
		if !taken {
			return number, nil
		}
	}
	return "", fmt.Errorf("%w: %d attempts", domain.ErrNumberTaken, maxNumberAttempts)
}
