package core_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/core"
)

func TestParseMessage(t *testing.T) {
	msg, err := core.ParseMessage([]byte(`{"topic":"call-offer","data":{"peer":"bob"}}`))
	require.NoError(t, err)
	assert.Equal(t, core.TopicCallOffer, msg.Topic)

	var ref core.PeerRef
	require.NoError(t, msg.Decode(&ref))
	assert.Equal(t, "bob", ref.Peer)
}

func TestParseMessageRejectsMissingTopic(t *testing.T) {
	_, err := core.ParseMessage([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, core.ErrNoTopic)

	_, err = core.ParseMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeMissingPayload(t *testing.T) {
	msg := core.Message{Topic: core.TopicCallOffer}
	var o core.Offer
	assert.ErrorIs(t, msg.Decode(&o), core.ErrNoPayload)
}

func TestPayloadValidation(t *testing.T) {
	assert.ErrorIs(t, core.Offer{}.Validate(), core.ErrNoPeer)
	assert.ErrorIs(t, core.Offer{Peer: "bob"}.Validate(), core.ErrNoOffer)
	assert.ErrorIs(t, core.Answer{}.Validate(), core.ErrNoPeer)
	assert.ErrorIs(t, core.Hangup{}.Validate(), core.ErrNoPeer)
	assert.ErrorIs(t, core.IceCandidate{}.Validate(), core.ErrNoPeer)
}

// The hub never inspects sdp contents; they must survive the trip through
// the envelope untouched.
func TestOfferRoundTrip(t *testing.T) {
	raw := []byte(`{"peer":"tom","offer":{"type":"offer","sdp":"v=0\r\no=- 42 2 IN IP4 127.0.0.1\r\n"}}`)

	var o core.Offer
	require.NoError(t, json.Unmarshal(raw, &o))
	require.NoError(t, o.Validate())

	out, err := json.Marshal(o)
	require.NoError(t, err)

	var back core.Offer
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, o.Offer.SDP, back.Offer.SDP)
	assert.Equal(t, o.Offer.Type, back.Offer.Type)
}
