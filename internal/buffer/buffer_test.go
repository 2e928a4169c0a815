package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/three-db/threedb/internal/tensor"
)

func rgbSchema() map[string]tensor.Schema {
	return map[string]tensor.Schema{
		"rgb": {Shape: tensor.Shape{3, 2, 2}, DType: tensor.Float32},
	}
}

func rgbData() tensor.Dict {
	return tensor.Dict{"rgb": tensor.New(rgbSchema()["rgb"])}
}

func TestDeclareIdempotentSetOnce(t *testing.T) {
	b := New(4)
	require.NoError(t, b.Declare(rgbSchema()))
	require.NoError(t, b.Declare(rgbSchema())) // same schema: no-op

	different := map[string]tensor.Schema{
		"rgb": {Shape: tensor.Shape{4, 2, 2}, DType: tensor.Float32},
	}
	err := b.Declare(different)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestAllocateReadFreeCycle(t *testing.T) {
	b := New(2)
	require.NoError(t, b.Declare(rgbSchema()))
	reg, err := b.Register()
	require.NoError(t, err)
	require.Equal(t, 1, reg)

	slot, err := b.Allocate(rgbData())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Occupied())

	got, err := b.Read(slot)
	require.NoError(t, err)
	assert.Contains(t, got, "rgb")

	b.Free(slot, reg)
	require.Eventually(t, func() bool { return b.Occupied() == 0 }, time.Second, time.Millisecond)
}

func TestRegisterMoreThanEightFails(t *testing.T) {
	b := New(4)
	for i := 0; i < MaxRegistrants; i++ {
		_, err := b.Register()
		require.NoError(t, err)
	}
	_, err := b.Register()
	require.ErrorIs(t, err, ErrTooManyRegistrants)
}

func TestAllocateUnknownChannelFails(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Declare(rgbSchema()))
	_, err := b.Allocate(tensor.Dict{"depth": tensor.New(tensor.Schema{Shape: tensor.Shape{1}, DType: tensor.Float32})})
	require.Error(t, err)
}

func TestAllocateDtypeMismatchFails(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Declare(rgbSchema()))
	bad := tensor.New(tensor.Schema{Shape: tensor.Shape{3, 2, 2}, DType: tensor.Float64})
	_, err := b.Allocate(tensor.Dict{"rgb": bad})
	require.Error(t, err)
}

// TestRefcountSoundness exercises the invariant from spec.md §8: a slot's
// refcount is zero iff it is on the free list, and the free list never
// duplicates an index, even with two registrants racing to free the same
// slot from different goroutines.
func TestRefcountSoundness(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Declare(rgbSchema()))
	reg1, _ := b.Register()
	reg2, _ := b.Register()

	slot, err := b.Allocate(rgbData())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Occupied())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.Free(slot, reg1) }()
	go func() { defer wg.Done(); b.Free(slot, reg2) }()
	wg.Wait()

	require.Eventually(t, func() bool { return b.Occupied() == 0 }, time.Second, time.Millisecond)

	// Slot must be reusable exactly once: a second allocate should not
	// see the same slot appear twice on the free list.
	slot2, err := b.Allocate(rgbData())
	require.NoError(t, err)
	assert.Equal(t, slot, slot2)
}

// TestBackpressureBlocksUntilFree exercises scenario 4 from spec.md §8:
// with a full buffer, Allocate blocks until a Free call makes a slot
// available, rather than erroring or silently dropping data.
func TestBackpressureBlocksUntilFree(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Declare(rgbSchema()))
	reg, _ := b.Register()

	slot, err := b.Allocate(rgbData())
	require.NoError(t, err)

	done := make(chan SlotIndex, 1)
	go func() {
		s, err := b.Allocate(rgbData())
		require.NoError(t, err)
		done <- s
	}()

	select {
	case <-done:
		t.Fatal("allocate should have blocked with the buffer full")
	case <-time.After(50 * time.Millisecond):
	}

	b.Free(slot, reg)

	select {
	case s := <-done:
		assert.Equal(t, slot, s)
	case <-time.After(time.Second):
		t.Fatal("allocate did not unblock after free")
	}
}

func TestForceFreeDropsDuplicate(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Declare(rgbSchema()))
	_, err := b.Register()
	require.NoError(t, err)

	slot, err := b.Allocate(rgbData())
	require.NoError(t, err)

	b.Free(slot, ForceRelease)
	require.Eventually(t, func() bool { return b.Occupied() == 0 }, time.Second, time.Millisecond)
}
