package models

import "encoding/json"

// Tab port events.
const (
	// background -> tab
	PortGetMediaInfo = "getMediaInfo"
	PortExecute      = "executeMediaEvent"
	// tab -> background
	PortMediaInfo     = "mediaInfo"
	PortExecuteResult = "executeMediaEventResult"
)

// PortMessage is one JSON frame on a tab port.
type PortMessage struct {
	Event string `json:"event"`

	// ID correlates an executeMediaEvent request with its result.
	ID                    string          `json:"id,omitempty"`
	CommunicationRevision Revision        `json:"communicationRevision,omitempty"`
	MediaEventData        json.RawMessage `json:"mediaEventData,omitempty"`
	MediaInfo             json.RawMessage `json:"mediaInfo,omitempty"`

	// Result fields, set on PortExecuteResult.
	Error       string `json:"error,omitempty"`
	Unsupported bool   `json:"unsupported,omitempty"`
}

// TabInfo is the arbiter's view of one tab channel.
type TabInfo struct {
	Token         string    `json:"token"`
	Connected     bool      `json:"connected"`
	Authoritative bool      `json:"authoritative"`
	Info          MediaInfo `json:"info"`
}
