package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelToTopicAndKey(t *testing.T) {
	tests := []struct {
		channel string
		topic   string
		key     string
		wantErr bool
	}{
		{channel: ListingChannel(42), topic: "market-listing", key: "42"},
		{channel: Channel(EntityUser, "u-1"), topic: "market-user", key: "u-1"},
		{channel: "market:rating:a:b", topic: "market-rating", key: "a:b"},
		{channel: "signal:room:1:to_media", wantErr: true},
		{channel: "market:user", wantErr: true},
		{channel: "market::x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			topic, key, err := channelToTopicAndKey(tt.channel)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.topic, topic)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestPatternToTopic(t *testing.T) {
	topic, err := patternToTopic(Pattern(EntityRating))
	require.NoError(t, err)
	assert.Equal(t, "market-rating", topic)

	_, err = patternToTopic(Channel(EntityRating, "u-1"))
	assert.Error(t, err)
}

func TestEvent_Payload(t *testing.T) {
	evt, err := NewEvent(EventUserFollowed, "u-1", UserPayload{UserID: "u-1", TargetID: "u-2"})
	require.NoError(t, err)
	assert.Equal(t, EventUserFollowed, evt.Type)
	assert.Equal(t, EntityUser, evt.Entity())
	assert.Len(t, evt.ID, 26)
	assert.False(t, evt.Timestamp.IsZero())

	next, err := NewEvent(EventUserFollowed, "u-1", nil)
	require.NoError(t, err)
	assert.NotEqual(t, evt.ID, next.ID)

	var p UserPayload
	require.NoError(t, evt.UnmarshalPayload(&p))
	assert.Equal(t, "u-2", p.TargetID)
}

func TestSanitizeGroupID(t *testing.T) {
	assert.Equal(t, "market-listing-42", sanitizeGroupID("market:listing:42"))
}

func TestNewPubSub_None(t *testing.T) {
	ps, err := NewPubSub(Config{Driver: DriverNone})
	require.NoError(t, err)
	assert.Nil(t, ps)

	_, err = NewPubSub(Config{Driver: "carrier-pigeon"})
	assert.Error(t, err)
}
