package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSRelayDeliversAcrossInstances(t *testing.T) {
	ns, err := StartEmbeddedNATS()
	require.NoError(t, err)
	t.Cleanup(ns.Shutdown)

	connect := func() *nats.Conn {
		nc, err := nats.Connect(ns.ClientURL())
		require.NoError(t, err)
		t.Cleanup(nc.Close)
		return nc
	}

	regA := NewRegistry(time.Minute, discardLogger())
	regB := NewRegistry(time.Minute, discardLogger())
	relayA, err := NewNATSRelay(connect(), "", regA, discardLogger())
	require.NoError(t, err)
	defer relayA.Close()
	relayB, err := NewNATSRelay(connect(), "", regB, discardLogger())
	require.NoError(t, err)
	defer relayB.Close()

	sender := &fakeSink{}
	localPeer := &fakeSink{}
	remotePeer := &fakeSink{}
	regA.Register("alice", sender)
	regA.Register("bob", localPeer)
	regB.Register("carol", remotePeer)

	n := relayA.BroadcastExcept(context.Background(), "alice", []byte(`{"type":"broadcast"}`))
	assert.Equal(t, 1, n)

	assert.Eventually(t, func() bool { return len(remotePeer.received()) == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{`{"type":"broadcast"}`}, remotePeer.received())

	// The origin instance ignores its own publication.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, localPeer.received(), 1)
	assert.Empty(t, sender.received())
}
