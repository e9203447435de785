package assembly

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidforge/lipsync/internal/types"
)

func frame(i int) types.Frame {
	return types.Frame{Index: i, Data: []byte(fmt.Sprintf("frame-%03d", i))}
}

func drain(a *Assembler) []types.Frame {
	var out []types.Frame
	for f := range a.Output() {
		out = append(out, f)
	}
	return out
}

func TestAssembler_InOrder(t *testing.T) {
	t.Parallel()

	const n = 10
	a := New(n)
	require.NoError(t, a.Expect(n))
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, a.Add(ctx, frame(i)))
	}
	require.Equal(t, Sealed, a.State())

	got := drain(a)
	require.Len(t, got, n)
	for i, f := range got {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, frame(i).Data, f.Data)
	}
}

func TestAssembler_AnyArrivalOrderSealsIdentically(t *testing.T) {
	t.Parallel()

	const n = 152
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 5; trial++ {
		a := New(n)
		require.NoError(t, a.Expect(n))

		order := rng.Perm(n)
		ctx := context.Background()
		for _, i := range order {
			require.NoError(t, a.Add(ctx, frame(i)))
		}
		require.Equal(t, Sealed, a.State())
		require.NoError(t, a.Finish(0))

		got := drain(a)
		require.Len(t, got, n)
		for i, f := range got {
			require.Equal(t, i, f.Index)
			require.Equal(t, frame(i).Data, f.Data)
		}
	}
}

func TestAssembler_DuplicateIndex(t *testing.T) {
	t.Parallel()

	const n = 6
	a := New(n)
	require.NoError(t, a.Expect(n))
	ctx := context.Background()

	require.NoError(t, a.Add(ctx, frame(n-1)))
	err := a.Add(ctx, frame(n-1))
	var dup *DuplicateFrameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, n-1, dup.Index)

	// A duplicate of an already-released frame is caught too.
	require.NoError(t, a.Add(ctx, frame(0)))
	err = a.Add(ctx, frame(0))
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 0, dup.Index)
}

func TestAssembler_MissingFrameAfterGrace(t *testing.T) {
	t.Parallel()

	const n = 8
	a := New(n)
	require.NoError(t, a.Expect(n))
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if i == 5 {
			continue
		}
		require.NoError(t, a.Add(ctx, frame(i)))
	}

	err := a.Finish(20 * time.Millisecond)
	var missing *MissingFramesError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []int{5}, missing.Missing)
	assert.Equal(t, n, missing.Expected)
	assert.Equal(t, n-1, missing.Received)
	assert.Equal(t, Failed, a.State())
	require.ErrorAs(t, a.Err(), &missing)
}

func TestAssembler_ContiguousPrefixReleasedEarly(t *testing.T) {
	t.Parallel()

	a := New(16)
	require.NoError(t, a.Expect(10))
	ctx := context.Background()

	// 0..4 contiguous, 7 withheld from the prefix.
	for _, i := range []int{2, 0, 1, 4, 3, 7} {
		require.NoError(t, a.Add(ctx, frame(i)))
	}

	for want := 0; want < 5; want++ {
		select {
		case f := <-a.Output():
			require.Equal(t, want, f.Index)
		default:
			t.Fatalf("frame %d not released with prefix complete up to 4", want)
		}
	}
	select {
	case f := <-a.Output():
		t.Fatalf("frame %d released past the contiguous prefix", f.Index)
	default:
	}
	require.Equal(t, Collecting, a.State())
}

func TestAssembler_FinishSealedIsFast(t *testing.T) {
	t.Parallel()

	a := New(4)
	require.NoError(t, a.Expect(2))
	ctx := context.Background()
	require.NoError(t, a.Add(ctx, frame(0)))
	require.NoError(t, a.Add(ctx, frame(1)))

	start := time.Now()
	require.NoError(t, a.Finish(5*time.Second))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAssembler_TotalRedeclared(t *testing.T) {
	t.Parallel()

	a := New(4)
	require.NoError(t, a.Expect(10))
	require.NoError(t, a.Expect(10))
	require.Error(t, a.Expect(11))
	require.Error(t, a.Expect(0))
}

func TestAssembler_FinishWithoutTotal(t *testing.T) {
	t.Parallel()

	a := New(4)
	ctx := context.Background()
	require.NoError(t, a.Add(ctx, frame(0)))
	err := a.Finish(0)
	require.Error(t, err)
	assert.Equal(t, Failed, a.State())
}

func TestAssembler_IndexOutOfRange(t *testing.T) {
	t.Parallel()

	a := New(4)
	require.NoError(t, a.Expect(3))
	ctx := context.Background()
	require.Error(t, a.Add(ctx, frame(3)))
	require.Error(t, a.Add(ctx, types.Frame{Index: -1}))
}

func TestAssembler_LateTotalDuringBlockedRelease(t *testing.T) {
	t.Parallel()

	a := New(1)
	ctx := context.Background()

	addErr := make(chan error, 1)
	go func() {
		// Frame 0 fills the buffer; frame 1's release blocks until the
		// consumer reads.
		if err := a.Add(ctx, frame(0)); err != nil {
			addErr <- err
			return
		}
		addErr <- a.Add(ctx, frame(1))
	}()

	time.Sleep(20 * time.Millisecond)
	// Declaring the total now must not close the output under the
	// in-flight send.
	require.NoError(t, a.Expect(2))

	got := drain(a)
	require.NoError(t, <-addErr)
	require.Len(t, got, 2)
	assert.Equal(t, Sealed, a.State())
}
