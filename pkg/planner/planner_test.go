package planner

import (
	"testing"

	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSpanAndAvail(t *testing.T) {
	tests := []struct {
		name      string
		capacity  int64
		spans     []span
		checkAt   int64
		checkDur  int64
		wantFree  int64
	}{
		{
			name:     "empty planner is fully free",
			capacity: 4,
			checkAt:  0,
			checkDur: 10,
			wantFree: 4,
		},
		{
			name:     "one overlapping span reduces free",
			capacity: 4,
			spans:    []span{{start: 0, duration: 10, qty: 2}},
			checkAt:  0,
			checkDur: 10,
			wantFree: 2,
		},
		{
			name:     "non-overlapping span does not reduce free",
			capacity: 4,
			spans:    []span{{start: 20, duration: 10, qty: 4}},
			checkAt:  0,
			checkDur: 10,
			wantFree: 4,
		},
		{
			name:     "window max across two disjoint spans",
			capacity: 4,
			spans:    []span{{start: 0, duration: 5, qty: 3}, {start: 5, duration: 5, qty: 1}},
			checkAt:  0,
			checkDur: 10,
			wantFree: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(0, 100, tt.capacity, "core")
			for i, s := range tt.spans {
				require.NoError(t, p.AddSpan(s.start, s.duration, s.qty, Holder(i+1)))
			}
			free, err := p.AvailResourcesDuring(tt.checkAt, tt.checkDur)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFree, free)
		})
	}
}

func TestAddSpanRejectsOverCapacity(t *testing.T) {
	p := New(0, 100, 2, "core")
	require.NoError(t, p.AddSpan(0, 10, 2, Holder(1)))
	err := p.AddSpan(0, 10, 1, Holder(2))
	require.Error(t, err)
	assert.Equal(t, rpcerr.ERANGE, rpcerr.AsErrno(err))
}

func TestAddSpanRejectsBadWindow(t *testing.T) {
	p := New(0, 100, 4, "core")

	err := p.AddSpan(-1, 10, 1, Holder(1))
	assert.Equal(t, rpcerr.EINVAL, rpcerr.AsErrno(err))

	err = p.AddSpan(0, 0, 1, Holder(1))
	assert.Equal(t, rpcerr.EINVAL, rpcerr.AsErrno(err))

	err = p.AddSpan(95, 10, 1, Holder(1))
	assert.Equal(t, rpcerr.EINVAL, rpcerr.AsErrno(err))
}

func TestRemoveSpanIdempotent(t *testing.T) {
	p := New(0, 100, 4, "core")
	require.NoError(t, p.AddSpan(0, 10, 2, Holder(1)))
	p.RemoveSpan(Holder(1))
	assert.False(t, p.HasHolder(Holder(1)))
	// removing again must not panic or error
	p.RemoveSpan(Holder(1))
	free, err := p.AvailResourcesDuring(0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), free)
}

func TestAvailTimeFirstFindsSoonestSlot(t *testing.T) {
	p := New(0, 100, 2, "core")
	require.NoError(t, p.AddSpan(0, 10, 2, Holder(1)))

	it, err := p.AvailTimeFirst(0, 5, 2)
	require.NoError(t, err)
	start, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(10), start)
}

func TestAvailTimeFirstExhaustion(t *testing.T) {
	p := New(0, 20, 2, "core")
	require.NoError(t, p.AddSpan(0, 20, 2, Holder(1)))

	it, err := p.AvailTimeFirst(0, 5, 2)
	require.NoError(t, err)
	_, err = it.Next()
	require.Error(t, err)
	assert.Equal(t, rpcerr.ENOENT, rpcerr.AsErrno(err))
}

func TestAvailTimeFirstRejectsOverCapacity(t *testing.T) {
	p := New(0, 20, 2, "core")
	_, err := p.AvailTimeFirst(0, 5, 3)
	require.Error(t, err)
	assert.Equal(t, rpcerr.ERANGE, rpcerr.AsErrno(err))
}

func TestAvailTimeNextAdvancesPastEachSpan(t *testing.T) {
	p := New(0, 100, 1, "core")
	require.NoError(t, p.AddSpan(0, 10, 1, Holder(1)))
	require.NoError(t, p.AddSpan(10, 10, 1, Holder(2)))

	it, err := p.AvailTimeFirst(0, 5, 1)
	require.NoError(t, err)
	start, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(20), start)
	assert.GreaterOrEqual(t, it.Probes(), int64(1))
}
