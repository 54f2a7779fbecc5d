package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhraseSpace(t *testing.T) {
	assert.GreaterOrEqual(t, phraseSpace(), uint64(1)<<30)
}

func TestNewPhrase_Shape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p, err := NewPhrase()
		require.NoError(t, err)
		words := strings.Fields(p)
		require.Len(t, words, 6, p)
		assert.Len(t, words[5], 2, "two-digit suffix in %q", p)
		seen[p] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestMatchPhrase(t *testing.T) {
	const expected = "brave falcon jumps over river 42"

	tests := []struct {
		name       string
		transcript string
		misses     int
		want       bool
	}{
		{"exact", "brave falcon jumps over river 42", 0, true},
		{"case and punctuation", "Brave falcon, jumps over the river 42.", 0, true},
		{"one missing word, none allowed", "brave falcon jumps over 42", 0, false},
		{"two missing words tolerated", "brave jumps over 42", 2, true},
		{"three missing words", "brave over 42", 2, false},
		{"empty transcript", "", 2, false},
		{"unrelated speech", "good morning everyone", 2, false},
		{"allowance never reaches zero", "nothing", 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPhrase(expected, tt.transcript, tt.misses))
		})
	}
}

func TestChallengeLedger_IssueSupersedes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.ledger.Issue(ctx, "alice")
	require.NoError(t, err)
	second, err := h.ledger.Issue(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(5*time.Minute), second.ExpiresAt)

	cur, err := h.ledger.Current(ctx, h.store.Conn(), "alice")
	require.NoError(t, err)
	assert.Equal(t, second.ID, cur.ID)

	err = h.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return h.ledger.Consume(ctx, tx, first.ID)
	})
	assert.ErrorIs(t, err, common.ErrChallenge, "superseded challenge is gone")
}

func TestChallengeLedger_ConsumeOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c, err := h.ledger.Issue(ctx, "alice")
	require.NoError(t, err)

	consume := func() error {
		return h.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			return h.ledger.Consume(ctx, tx, c.ID)
		})
	}
	require.NoError(t, consume())
	assert.ErrorIs(t, consume(), common.ErrChallenge)

	_, err = h.ledger.Current(ctx, h.store.Conn(), "alice")
	assert.ErrorIs(t, err, common.ErrChallenge)
}

func TestChallengeLedger_Expiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c, err := h.ledger.Issue(ctx, "alice")
	require.NoError(t, err)

	ok, err := h.ledger.Validate(ctx, "alice", c.Phrase)
	require.NoError(t, err)
	assert.True(t, ok)

	h.clock.Advance(5 * time.Minute)
	_, err = h.ledger.Validate(ctx, "alice", c.Phrase)
	assert.ErrorIs(t, err, common.ErrChallenge)

	err = h.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return h.ledger.Consume(ctx, tx, c.ID)
	})
	assert.ErrorIs(t, err, common.ErrChallenge)

	n, err := h.ledger.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
