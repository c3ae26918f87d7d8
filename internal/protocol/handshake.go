package protocol

import (
	"strconv"
	"strings"

	"wnpbridge/internal/models"
)

const (
	adapterVersionPrefix = "ADAPTER_VERSION "
	revisionMarker       = ";WNPRLIB_REVISION "
	legacyVersionPrefix  = "Version:"
)

// Handshake is what the socket learned from an adapter's first frame.
type Handshake struct {
	Revision models.Revision
	Version  string
	// Outdated is set when the adapter predates version negotiation.
	Outdated bool
	// Consumed is false when the frame was not handshake data and should be
	// handled as a legacy command instead.
	Consumed bool
}

// LegacyHandshake is assumed when an adapter says nothing recognizable.
func LegacyHandshake() Handshake {
	return Handshake{Revision: models.RevisionLegacy, Outdated: true}
}

// ParseHandshake interprets the first frame received on a connection.
func ParseHandshake(frame string) Handshake {
	switch {
	case strings.HasPrefix(frame, adapterVersionPrefix):
		rest := strings.TrimPrefix(frame, adapterVersionPrefix)
		version, rev, ok := strings.Cut(rest, revisionMarker)
		r := models.Revision(strings.TrimSpace(rev))
		if !ok || !r.Valid() || r == models.RevisionLegacy {
			h := LegacyHandshake()
			h.Version = strings.TrimSpace(version)
			h.Consumed = true
			return h
		}
		return Handshake{Revision: r, Version: strings.TrimSpace(version), Consumed: true}
	case strings.HasPrefix(frame, legacyVersionPrefix):
		h := LegacyHandshake()
		h.Version = strings.TrimSpace(strings.TrimPrefix(frame, legacyVersionPrefix))
		h.Consumed = true
		return h
	}
	return LegacyHandshake()
}

// EventResultLine is the revision 3 acknowledgement for one command frame.
func EventResultLine(eventID int64, success bool) string {
	status := "FAILED"
	if success {
		status = "SUCCEEDED"
	}
	return "EVENT_RESULT " + strconv.FormatInt(eventID, 10) + " " + status
}
