package snowflake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewNode_RejectsOutOfRangeNode(t *testing.T) {
	req := require.New(t)

	_, err := NewNode(-1)
	req.Error(err)
	_, err = NewNode(1024)
	req.Error(err)
	_, err = NewNode(1023)
	req.NoError(err)
}

func TestGenerate_IDsAreStrictlyIncreasing(t *testing.T) {
	req := require.New(t)
	node, err := NewNode(1)
	req.NoError(err)

	prev := node.Generate()
	for i := 0; i < 5000; i++ {
		id := node.Generate()
		req.Greater(id, prev)
		prev = id
	}
}

func TestTime_RecoversCreationInstant(t *testing.T) {
	req := require.New(t)
	node, err := NewNode(7)
	req.NoError(err)

	before := time.Now().Truncate(time.Millisecond)
	id := node.Generate()
	after := time.Now()

	created := Time(id)
	req.False(created.Before(before), "Time(id) %v predates generation window start %v", created, before)
	req.False(created.After(after), "Time(id) %v postdates generation window end %v", created, after)
}

func TestTime_OrderFollowsIDOrder(t *testing.T) {
	req := require.New(t)
	node, err := NewNode(2)
	req.NoError(err)

	a := node.Generate()
	time.Sleep(2 * time.Millisecond)
	b := node.Generate()

	req.Less(a, b)
	req.True(Time(b).After(Time(a)))
}
