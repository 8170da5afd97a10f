package updatechannel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryFanOut(t *testing.T) {
	r := NewRegistry()
	var first, second, other int
	r.Subscribe(EventAvailable, func() { first++ })
	r.Subscribe(EventAvailable, func() { second++ })
	r.Subscribe(EventDownloaded, func() { other++ })

	assert.Equal(t, 2, r.Emit(EventAvailable))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 0, other)
}

func TestRegistryUnsubscribe(t *testing.T) {
	r := NewRegistry()
	calls := 0
	unsubscribe := r.Subscribe(EventDownloaded, func() { calls++ })

	r.Emit(EventDownloaded)
	unsubscribe()
	unsubscribe()
	r.Emit(EventDownloaded)

	assert.Equal(t, 1, calls)
	assert.Zero(t, r.Len(EventDownloaded))
}

func TestRegistryUnsubscribeDuringEmit(t *testing.T) {
	r := NewRegistry()
	var order []string
	var unsubscribeSecond func()
	r.Subscribe(EventAvailable, func() {
		order = append(order, "first")
		unsubscribeSecond()
	})
	unsubscribeSecond = r.Subscribe(EventAvailable, func() { order = append(order, "second") })

	assert.Equal(t, 1, r.Emit(EventAvailable))
	assert.Equal(t, []string{"first"}, order)
}

func TestEventKindChannels(t *testing.T) {
	assert.Equal(t, ChannelUpdateAvailable, EventAvailable.Channel())
	assert.Equal(t, ChannelUpdateDownloaded, EventDownloaded.String())

	kind, ok := eventForChannel(ChannelUpdateDownloaded)
	assert.True(t, ok)
	assert.Equal(t, EventDownloaded, kind)

	_, ok = eventForChannel(ChannelInstallUpdate)
	assert.False(t, ok)
}
