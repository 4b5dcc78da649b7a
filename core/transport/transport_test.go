package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendDelivers(t *testing.T) {
	net := New(Options{})
	defer net.Close()

	inbox := net.Join("n2")
	net.Join("n1")

	require.True(t, net.Send("n1", "n2", "hello"))

	select {
	case msg := <-inbox:
		require.Equal(t, "n1", msg.From)
		require.Equal(t, "n2", msg.To)
		require.Equal(t, "hello", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestSendUnknownDestination(t *testing.T) {
	net := New(Options{})
	defer net.Close()

	net.Join("n1")
	require.False(t, net.Send("n1", "ghost", "hello"))
}

func TestBroadcastSkipsSender(t *testing.T) {
	net := New(Options{})
	defer net.Close()

	sender := net.Join("n1")
	in2 := net.Join("n2")
	in3 := net.Join("n3")

	net.Broadcast("n1", "ping")

	for _, inbox := range []<-chan Message{in2, in3} {
		select {
		case msg := <-inbox:
			require.Equal(t, "ping", msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("broadcast not delivered")
		}
	}

	select {
	case <-sender:
		t.Fatal("broadcast must not loop back to the sender")
	default:
	}
}

func TestLossRateDropsEverything(t *testing.T) {
	net := New(Options{LossRate: 1})
	defer net.Close()

	inbox := net.Join("n2")
	net.Join("n1")

	for i := 0; i < 50; i++ {
		require.False(t, net.Send("n1", "n2", i))
	}
	require.Empty(t, inbox)
	require.Equal(t, uint64(50), net.Dropped())
	require.Equal(t, uint64(0), net.Sent())
}

func TestDelayedDelivery(t *testing.T) {
	net := New(Options{MaxDelay: 20 * time.Millisecond})
	defer net.Close()

	inbox := net.Join("n2")
	net.Join("n1")

	require.True(t, net.Send("n1", "n2", "later"))

	select {
	case msg := <-inbox:
		require.Equal(t, "later", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("delayed message never arrived")
	}
}

func TestFullInboxDrops(t *testing.T) {
	net := New(Options{BufferSize: 1})
	defer net.Close()

	net.Join("n2")
	net.Join("n1")

	require.True(t, net.Send("n1", "n2", 1))
	require.False(t, net.Send("n1", "n2", 2))
	require.Equal(t, uint64(1), net.Dropped())
}

func TestPick(t *testing.T) {
	net := New(Options{})
	defer net.Close()

	for _, id := range []string{"n1", "n2", "n3", "n4", "n5"} {
		net.Join(id)
	}

	picked := net.Pick("n1", 3)
	require.Len(t, picked, 3)
	seen := make(map[string]struct{})
	for _, id := range picked {
		require.NotEqual(t, "n1", id, "must exclude the caller")
		seen[id] = struct{}{}
	}
	require.Len(t, seen, 3, "picks must be distinct")

	require.Len(t, net.Pick("n1", 10), 4, "k larger than membership returns everyone else")
}

func TestCloseStopsDelivery(t *testing.T) {
	net := New(Options{})
	inbox := net.Join("n2")
	net.Join("n1")

	net.Close()
	require.False(t, net.Send("n1", "n2", "x"))
	require.Empty(t, inbox)
}
