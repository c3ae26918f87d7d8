package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"wnpbridge/internal/models"
)

type wireField struct {
	field models.Field
	// alias is the key used by legacy and revision 1; empty means the field
	// is never sent on those revisions.
	alias string
}

// fieldOrder is the fixed transmission order. Receivers parse lines
// sequentially, so it must not change between calls.
var fieldOrder = []wireField{
	{models.FieldPlayerName, "player"},
	{models.FieldState, "state"},
	{models.FieldTitle, "title"},
	{models.FieldArtist, "artist"},
	{models.FieldAlbum, "album"},
	{models.FieldCoverURL, "cover"},
	{models.FieldDurationSeconds, "duration"},
	{models.FieldPositionSeconds, "position"},
	{models.FieldVolume, "volume"},
	{models.FieldRating, "rating"},
	{models.FieldRepeatMode, "repeat"},
	{models.FieldShuffleActive, "shuffle"},
	{models.FieldTimestamp, ""},
	{models.FieldPlayerControls, ""},
}

var stateField = wireField{models.FieldState, "state"}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// SnakeCase converts a camelCase field name to SNAKE_CASE.
func SnakeCase(name string) string {
	return strings.ToUpper(camelBoundary.ReplaceAllString(name, "${1}_${2}"))
}

// Encoder renders snapshots for a single adapter connection. It owns the
// cache of values already sent on that connection and only emits changes.
// An Encoder is not safe for concurrent use.
type Encoder struct {
	revision models.Revision
	sent     map[models.Field]string
}

func NewEncoder(rev models.Revision) *Encoder {
	return &Encoder{revision: rev, sent: make(map[models.Field]string)}
}

func (e *Encoder) Revision() models.Revision {
	return e.revision
}

// Reset forgets everything sent so the next Encode emits a full snapshot.
func (e *Encoder) Reset() {
	clear(e.sent)
}

// Encode returns the wire lines that bring the receiver up to date with
// info. A nil info means no player is ready and only STATE is reported.
func (e *Encoder) Encode(info *models.MediaInfo) []string {
	if info == nil {
		stopped := models.DefaultMediaInfo()
		if line, ok := e.encodeField(stateField, &stopped); ok {
			return []string{line}
		}
		return nil
	}

	var lines []string
	for _, f := range fieldOrder {
		if line, ok := e.encodeField(f, info); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func (e *Encoder) encodeField(f wireField, info *models.MediaInfo) (string, bool) {
	key := SnakeCase(string(f.field))
	if e.revision == models.RevisionLegacy || e.revision == models.Revision1 {
		if f.alias == "" {
			return "", false
		}
		key = strings.ToUpper(f.alias)
	}
	value := textValue(e.revision, f.field, info)

	if prev, ok := e.sent[f.field]; ok && prev == value {
		return "", false
	}
	e.sent[f.field] = value

	if e.revision == models.RevisionLegacy {
		return key + ":" + value, true
	}
	return key + " " + value, true
}

func textValue(rev models.Revision, f models.Field, info *models.MediaInfo) string {
	legacy := rev == models.RevisionLegacy
	clock := legacy || rev == models.Revision1

	switch f {
	case models.FieldPlayerName:
		return info.PlayerName
	case models.FieldState:
		if legacy {
			return strconv.Itoa(legacyState(info.State))
		}
		return string(info.State)
	case models.FieldTitle:
		return info.Title
	case models.FieldArtist:
		return info.Artist
	case models.FieldAlbum:
		return info.Album
	case models.FieldCoverURL:
		return info.CoverURL
	case models.FieldDurationSeconds:
		if clock {
			return FormatClock(info.DurationSeconds)
		}
		return strconv.Itoa(info.DurationSeconds)
	case models.FieldPositionSeconds:
		if clock {
			return FormatClock(info.PositionSeconds)
		}
		return strconv.Itoa(info.PositionSeconds)
	case models.FieldVolume:
		return strconv.Itoa(info.Volume)
	case models.FieldRating:
		return strconv.Itoa(info.Rating)
	case models.FieldRepeatMode:
		if legacy {
			return strconv.Itoa(legacyRepeat(info.RepeatMode))
		}
		return string(info.RepeatMode)
	case models.FieldShuffleActive:
		if legacy {
			if info.ShuffleActive {
				return "1"
			}
			return "0"
		}
		return strconv.FormatBool(info.ShuffleActive)
	case models.FieldTimestamp:
		if info.Timestamp.IsZero() {
			return "0"
		}
		return strconv.FormatInt(info.Timestamp.UnixMilli(), 10)
	case models.FieldPlayerControls:
		data, err := json.Marshal(info.PlayerControls)
		if err != nil {
			return "{}"
		}
		return string(data)
	}
	return ""
}

func legacyState(s models.PlaybackState) int {
	switch s {
	case models.StatePlaying:
		return 1
	case models.StatePaused:
		return 2
	}
	return 0
}

func legacyRepeat(r models.RepeatMode) int {
	switch r {
	case models.RepeatOne:
		return 1
	case models.RepeatAll:
		return 2
	}
	return 0
}

// FormatClock renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
