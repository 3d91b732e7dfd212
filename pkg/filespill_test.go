package pkg

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSpill(t *testing.T) {
	t.Run("append and get", func(t *testing.T) {
		spill, err := NewFileSpill[string]()
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.Append("first"))
		require.NoError(t, spill.Append("second"))
		require.Equal(t, uint64(2), spill.Len())

		v, err := spill.Get(0)
		require.NoError(t, err)
		require.Equal(t, "first", v)

		v, err = spill.Get(1)
		require.NoError(t, err)
		require.Equal(t, "second", v)

		_, err = spill.Get(2)
		require.Error(t, err)
	})

	t.Run("append batch", func(t *testing.T) {
		spill, err := NewFileSpill[int]()
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.AppendBatch([]int{10, 20, 30}))
		require.Equal(t, uint64(3), spill.Len())

		v, err := spill.Get(2)
		require.NoError(t, err)
		require.Equal(t, 30, v)
	})

	t.Run("range preserves append order", func(t *testing.T) {
		spill, err := NewFileSpill[int]()
		require.NoError(t, err)
		defer spill.Close()

		expected := []int{100, 200, 300}
		for _, v := range expected {
			require.NoError(t, spill.Append(v))
		}

		var collected []int
		require.NoError(t, spill.Range(func(_ uint64, item int) error {
			collected = append(collected, item)
			return nil
		}))
		require.Equal(t, expected, collected)
	})

	t.Run("range stops on callback error", func(t *testing.T) {
		spill, err := NewFileSpill[int]()
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.AppendBatch([]int{1, 2, 3}))

		count := 0
		stop := errors.New("stop")
		err = spill.Range(func(index uint64, _ int) error {
			count++
			if index == 1 {
				return stop
			}
			return nil
		})
		require.ErrorIs(t, err, stop)
		require.Equal(t, 2, count)
	})

	t.Run("empty spill", func(t *testing.T) {
		spill, err := NewFileSpill[int]()
		require.NoError(t, err)
		defer spill.Close()

		require.Equal(t, uint64(0), spill.Len())
		require.NoError(t, spill.Range(func(uint64, int) error {
			t.Fatal("callback on empty spill")
			return nil
		}))
		_, err = spill.Get(0)
		require.Error(t, err)
	})

	t.Run("data survives close", func(t *testing.T) {
		spill, err := NewFileSpill[int]()
		require.NoError(t, err)

		require.NoError(t, spill.Append(7))
		require.NoError(t, spill.Close())
		require.NoError(t, spill.Close(), "double close is a no-op")

		v, err := spill.Get(0)
		require.NoError(t, err)
		require.Equal(t, 7, v)
	})

	t.Run("concurrent appends", func(t *testing.T) {
		type rec struct{ ID int }

		spill, err := NewFileSpill[rec]()
		require.NoError(t, err)
		defer spill.Close()

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				require.NoError(t, spill.Append(rec{ID: i}))
			}()
		}
		wg.Wait()

		require.Equal(t, uint64(n), spill.Len())
		seen := make(map[int]bool)
		require.NoError(t, spill.Range(func(_ uint64, r rec) error {
			seen[r.ID] = true
			return nil
		}))
		require.Len(t, seen, n)
	})
}
