// log.go - Full replay of the commitment log.
//
// The ledger only exposes leaf insertions as reverse-chronological pages, but
// the prover needs the complete ascending sequence: a gap or out-of-order
// leaf produces a root the ledger will never accept. The reader therefore
// drains every page, checks contiguity as it goes, and reverses once at the
// end. It never returns a partial sequence.
package ledger

import (
	"context"
	"fmt"

	"shroud/internal/common"
)

// ReadFullLog replays every LeafInserted event into the ascending-index,
// duplicate-free, gap-free sequence of commitment values. Any page failure
// or contiguity violation fails the whole read with ErrLogUnavailable.
func (c *Client) ReadFullLog(ctx context.Context) ([]common.Hash, error) {
	var (
		values  []common.Hash
		cursor  string
		started bool
		expect  uint64
	)
	for {
		page, err := c.QueryLeafEvents(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLogUnavailable, err)
		}
		for _, ev := range page.Events {
			if !started {
				started = true
				expect = ev.Index
			} else if ev.Index != expect {
				return nil, fmt.Errorf("%w: leaf index %d out of order, expected %d", ErrLogUnavailable, ev.Index, expect)
			}
			values = append(values, ev.Value)
			if expect == 0 && page.HasNextPage {
				return nil, fmt.Errorf("%w: pages continue past leaf 0", ErrLogUnavailable)
			}
			expect--
		}
		if !page.HasNextPage {
			break
		}
		if page.NextCursor == "" {
			return nil, fmt.Errorf("%w: node reported more pages without a cursor", ErrLogUnavailable)
		}
		cursor = page.NextCursor
	}
	if started && expect != ^uint64(0) {
		// the stream ended before reaching leaf 0
		return nil, fmt.Errorf("%w: log truncated at leaf %d", ErrLogUnavailable, expect+1)
	}
	// pages arrive newest-first; one reversal yields ascending index order
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
	c.log.Debug().Int("leaves", len(values)).Msg("commitment log replayed")
	return values, nil
}
