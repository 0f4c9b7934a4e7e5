package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssert_SameStateAlwaysLegal(t *testing.T) {
	for _, s := range All() {
		assert.NoError(t, Assert(s, s), "same-state transition for %s", s)
	}
}

func TestAssert_RenamedIsTerminal(t *testing.T) {
	for _, s := range All() {
		if s == StatusRenamed {
			continue
		}
		err := Assert(StatusRenamed, s)
		require.Error(t, err, "renamed -> %s must fail", s)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	}
	assert.True(t, StatusRenamed.Terminal())
}

func TestAssert_RetryEdges(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusScrapeFailed, StatusScanned, true},
		{StatusRenameFailed, StatusRenaming, true},
		{StatusRenameFailed, StatusScanned, true},
		{StatusScrapeFailed, StatusRenaming, false},
		{StatusRenameFailed, StatusRenamed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := Assert(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssert_ForwardPipeline(t *testing.T) {
	renamePath := []Status{StatusPending, StatusScanned, StatusMatching, StatusMatched, StatusRenaming, StatusRenamed}
	for i := 1; i < len(renamePath); i++ {
		assert.NoError(t, Assert(renamePath[i-1], renamePath[i]))
	}

	scrapePath := []Status{StatusPending, StatusScanned, StatusScraping, StatusScraped, StatusRenaming, StatusRenamed}
	for i := 1; i < len(scrapePath); i++ {
		assert.NoError(t, Assert(scrapePath[i-1], scrapePath[i]))
	}
}

func TestAssert_BackwardsRejected(t *testing.T) {
	err := Assert(StatusRenaming, StatusMatching)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusRenaming, te.From)
	assert.Equal(t, StatusMatching, te.To)
	assert.Equal(t, "invalid_state_transition", te.ErrorCode())
}

func TestReachable_AllStatusesFromPending(t *testing.T) {
	for _, s := range All() {
		assert.True(t, Reachable(s), "%s should be reachable from pending", s)
	}
}

func TestParse(t *testing.T) {
	s, err := Parse(" Renamed ")
	require.NoError(t, err)
	assert.Equal(t, StatusRenamed, s)

	_, err = Parse("exploded")
	assert.Error(t, err)
}

func TestGuard(t *testing.T) {
	stored := StatusScanned
	read := func() (Status, error) { return stored, nil }
	write := func(from Status) error {
		if from != stored {
			return errors.New("stale")
		}
		stored = StatusMatching
		return nil
	}

	from, err := Guard(read, StatusMatching, write)
	require.NoError(t, err)
	assert.Equal(t, StatusScanned, from)
	assert.Equal(t, StatusMatching, stored)

	// matching -> renamed is not an edge; write must not run.
	from, err = Guard(read, StatusRenamed, func(Status) error {
		t.Fatal("write called for an illegal edge")
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusMatching, from)

	boom := errors.New("db down")
	_, err = Guard(func() (Status, error) { return "", boom }, StatusScanned, write)
	assert.ErrorIs(t, err, boom)
}
