package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorFirstJoinLeads(t *testing.T) {
	var c Coordinator

	require.True(t, c.Join(func(string, error) { t.Error("leader continuation must not be retained") }))
	assert.True(t, c.Refreshing())
	assert.Zero(t, c.Pending())
}

func TestCoordinatorParksWhileRefreshing(t *testing.T) {
	var c Coordinator
	require.True(t, c.Join(nil))

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		leader := c.Join(func(access string, err error) {
			order = append(order, name+":"+access)
		})
		assert.False(t, leader)
	}
	assert.Equal(t, 3, c.Pending())
	assert.Empty(t, order, "continuations resume only on Finish")

	c.Finish("fresh", nil)

	assert.Equal(t, []string{"a:fresh", "b:fresh", "c:fresh"}, order)
	assert.False(t, c.Refreshing())
	assert.Zero(t, c.Pending())
}

func TestCoordinatorPropagatesFailure(t *testing.T) {
	var c Coordinator
	require.True(t, c.Join(nil))

	boom := errors.New("renewal rejected")
	var got []error
	c.Join(func(_ string, err error) { got = append(got, err) })
	c.Join(func(_ string, err error) { got = append(got, err) })

	c.Finish("", boom)

	require.Len(t, got, 2)
	for _, err := range got {
		assert.ErrorIs(t, err, boom)
	}
}

func TestCoordinatorDrainsLateArrivals(t *testing.T) {
	var c Coordinator
	require.True(t, c.Join(nil))

	var resumed []string
	c.Join(func(access string, _ error) {
		resumed = append(resumed, "first")
		// Parked while Finish is draining; must still be served by this refresh.
		assert.False(t, c.Join(func(access string, _ error) {
			resumed = append(resumed, "late:"+access)
		}))
	})

	c.Finish("fresh", nil)

	assert.Equal(t, []string{"first", "late:fresh"}, resumed)
	assert.False(t, c.Refreshing())
}

func TestCoordinatorReusableAfterFinish(t *testing.T) {
	var c Coordinator
	require.True(t, c.Join(nil))
	c.Finish("one", nil)

	assert.True(t, c.Join(nil), "a new cycle starts after the previous one finished")
}
