package signature

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutThenGet(t *testing.T) {
	store := NewStore()

	stored, err := store.Put("txid", 2, "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", stored)

	sig, err := store.Get("txid", 2)
	require.NoError(t, err)
	require.Equal(t, "abc", sig)

	_, err = store.Get("txid", 3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetUnknownTxid(t *testing.T) {
	store := NewStore()

	_, err := store.Get("missing", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutOverwritesSlot(t *testing.T) {
	store := NewStore()

	_, err := store.Put("txid", 1, "first")
	require.NoError(t, err)
	_, err = store.Put("txid", 1, "second")
	require.NoError(t, err)

	sig, err := store.Get("txid", 1)
	require.NoError(t, err)
	require.Equal(t, "second", sig)
}

func TestPartyIndexBounds(t *testing.T) {
	store := NewStore()

	for _, party := range []int{0, -1, PartyCount + 1} {
		_, err := store.Put("txid", party, "sig")
		if !errors.Is(err, ErrInvalidParty) {
			t.Fatalf("party %d: expected ErrInvalidParty, got %v", party, err)
		}
		_, err = store.Get("txid", party)
		if !errors.Is(err, ErrInvalidParty) {
			t.Fatalf("party %d: expected ErrInvalidParty on get, got %v", party, err)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("expected rejected puts to leave no set, got %d", store.Len())
	}
}

func TestSlotsKeepsFixedLength(t *testing.T) {
	store := NewStore()
	_, err := store.Put("txid", 4, "last")
	require.NoError(t, err)

	set, ok := store.Slots("txid")
	require.True(t, ok)
	require.Len(t, set, PartyCount)
	require.Nil(t, set[0])
	require.Nil(t, set[1])
	require.Nil(t, set[2])
	require.NotNil(t, set[3])
	require.Equal(t, 1, set.Count())

	*set[3] = "mutated"
	sig, err := store.Get("txid", 4)
	require.NoError(t, err)
	require.Equal(t, "last", sig, "Slots must return a copy")
}

func TestComplete(t *testing.T) {
	store := NewStore()
	require.False(t, store.Complete("txid"))

	for party := 1; party <= PartyCount; party++ {
		require.False(t, store.Complete("txid"))
		_, err := store.Put("txid", party, "sig"+strconv.Itoa(party))
		require.NoError(t, err)
	}
	require.True(t, store.Complete("txid"))
}

func TestConcurrentPuts(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			party := i%PartyCount + 1
			if _, err := store.Put("txid", party, strconv.Itoa(i)); err != nil {
				t.Errorf("put: %v", err)
			}
			_, _ = store.Get("txid", party)
		}(i)
	}
	wg.Wait()

	set, ok := store.Slots("txid")
	if !ok {
		t.Fatalf("expected signature set")
	}
	if set.Count() != PartyCount {
		t.Fatalf("expected %d slots filled, got %d", PartyCount, set.Count())
	}
}
