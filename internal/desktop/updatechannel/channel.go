// Package updatechannel carries the desktop auto-update protocol between the
// privileged process and the sandboxed UI: two notifications, one version
// query and one install command, framed as JSON envelopes over a websocket.
package updatechannel

import (
	"encoding/json"
	"errors"
)

// Channel names. They match the names the UI bundle uses.
const (
	ChannelGetAppVersion    = "get-app-version"
	ChannelUpdateAvailable  = "update-available"
	ChannelUpdateDownloaded = "update-downloaded"
	ChannelInstallUpdate    = "install-update"
)

// EnvelopeKind is the role of a message on the wire.
type EnvelopeKind string

const (
	KindInvoke EnvelopeKind = "invoke"
	KindResult EnvelopeKind = "result"
	KindEvent  EnvelopeKind = "event"
)

// Envelope is one message on the channel. ID pairs a result with its
// invoke and is empty for events and fire-and-forget invokes.
type Envelope struct {
	Kind    EnvelopeKind    `json:"kind"`
	Channel string          `json:"channel"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EventKind is an update notification. Events carry no payload.
type EventKind int

const (
	EventAvailable EventKind = iota
	EventDownloaded
)

func (k EventKind) String() string {
	return k.Channel()
}

// Channel returns the wire channel of the event.
func (k EventKind) Channel() string {
	if k == EventDownloaded {
		return ChannelUpdateDownloaded
	}
	return ChannelUpdateAvailable
}

func eventForChannel(channel string) (EventKind, bool) {
	switch channel {
	case ChannelUpdateAvailable:
		return EventAvailable, true
	case ChannelUpdateDownloaded:
		return EventDownloaded, true
	default:
		return 0, false
	}
}

type versionPayload struct {
	Version string `json:"version"`
}

// ErrChannelClosed is returned by invokes when the channel is down.
var ErrChannelClosed = errors.New("update channel closed")
