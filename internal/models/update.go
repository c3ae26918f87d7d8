package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Field names a tracked MediaInfo key as it appears on the tab port.
type Field string

const (
	FieldPlayerName      Field = "playerName"
	FieldState           Field = "state"
	FieldTitle           Field = "title"
	FieldArtist          Field = "artist"
	FieldAlbum           Field = "album"
	FieldCoverURL        Field = "coverUrl"
	FieldDurationSeconds Field = "durationSeconds"
	FieldPositionSeconds Field = "positionSeconds"
	FieldVolume          Field = "volume"
	FieldRating          Field = "rating"
	FieldRepeatMode      Field = "repeatMode"
	FieldShuffleActive   Field = "shuffleActive"
	FieldTimestamp       Field = "timestamp"
	FieldPlayerControls  Field = "playerControls"
)

// MediaUpdate is a partial MediaInfo. A nil field is absent; zero values
// that are present (0, false, "") are real values.
type MediaUpdate struct {
	PlayerName      *string        `json:"playerName,omitempty"`
	State           *PlaybackState `json:"state,omitempty"`
	Title           *string        `json:"title,omitempty"`
	Artist          *string        `json:"artist,omitempty"`
	Album           *string        `json:"album,omitempty"`
	CoverURL        *string        `json:"coverUrl,omitempty"`
	DurationSeconds *int           `json:"durationSeconds,omitempty"`
	PositionSeconds *int           `json:"positionSeconds,omitempty"`
	Volume          *int           `json:"volume,omitempty"`
	Rating          *int           `json:"rating,omitempty"`
	RepeatMode      *RepeatMode    `json:"repeatMode,omitempty"`
	ShuffleActive   *bool          `json:"shuffleActive,omitempty"`
	PlayerControls  *Controls      `json:"playerControls,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

var errNotObject = errors.New("media update must be a JSON object")

// DecodeMediaUpdate decodes a partial update key by key. Unknown keys, nulls
// and values of the wrong type are dropped individually.
func DecodeMediaUpdate(data []byte) (MediaUpdate, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return MediaUpdate{}, errNotObject
	}

	var u MediaUpdate
	for key, val := range raw {
		if string(val) == "null" {
			continue
		}
		switch Field(key) {
		case FieldPlayerName:
			u.PlayerName = decodeField[string](val)
		case FieldState:
			if s := decodeField[PlaybackState](val); s != nil && s.Valid() {
				u.State = s
			}
		case FieldTitle:
			u.Title = decodeField[string](val)
		case FieldArtist:
			u.Artist = decodeField[string](val)
		case FieldAlbum:
			u.Album = decodeField[string](val)
		case FieldCoverURL:
			u.CoverURL = decodeField[string](val)
		case FieldDurationSeconds:
			u.DurationSeconds = decodeSeconds(val)
		case FieldPositionSeconds:
			u.PositionSeconds = decodeSeconds(val)
		case FieldVolume:
			if v := decodeSeconds(val); v != nil {
				u.Volume = Ptr(clamp(*v, 0, 100))
			}
		case FieldRating:
			if v := decodeSeconds(val); v != nil {
				u.Rating = Ptr(clamp(*v, 0, 5))
			}
		case FieldRepeatMode:
			if r := decodeField[RepeatMode](val); r != nil && r.Valid() {
				u.RepeatMode = r
			}
		case FieldShuffleActive:
			u.ShuffleActive = decodeField[bool](val)
		case FieldPlayerControls:
			u.PlayerControls = decodeField[Controls](val)
		}
	}
	return u, nil
}

func decodeField[T any](raw json.RawMessage) *T {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// decodeSeconds accepts integral or fractional JSON numbers and truncates.
func decodeSeconds(raw json.RawMessage) *int {
	f := decodeField[float64](raw)
	if f == nil {
		return nil
	}
	return Ptr(int(*f))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Empty reports whether no field is present.
func (u MediaUpdate) Empty() bool {
	return u == MediaUpdate{}
}

// AsUpdate returns m as a full update with every field present.
func (m MediaInfo) AsUpdate() MediaUpdate {
	return MediaUpdate{
		PlayerName:      Ptr(m.PlayerName),
		State:           Ptr(m.State),
		Title:           Ptr(m.Title),
		Artist:          Ptr(m.Artist),
		Album:           Ptr(m.Album),
		CoverURL:        Ptr(m.CoverURL),
		DurationSeconds: Ptr(m.DurationSeconds),
		PositionSeconds: Ptr(m.PositionSeconds),
		Volume:          Ptr(m.Volume),
		Rating:          Ptr(m.Rating),
		RepeatMode:      Ptr(m.RepeatMode),
		ShuffleActive:   Ptr(m.ShuffleActive),
		PlayerControls:  Ptr(m.PlayerControls),
	}
}

// Select returns the part of u covering fields.
func (u MediaUpdate) Select(fields []Field) MediaUpdate {
	var out MediaUpdate
	for _, f := range fields {
		switch f {
		case FieldPlayerName:
			out.PlayerName = u.PlayerName
		case FieldState:
			out.State = u.State
		case FieldTitle:
			out.Title = u.Title
		case FieldArtist:
			out.Artist = u.Artist
		case FieldAlbum:
			out.Album = u.Album
		case FieldCoverURL:
			out.CoverURL = u.CoverURL
		case FieldDurationSeconds:
			out.DurationSeconds = u.DurationSeconds
		case FieldPositionSeconds:
			out.PositionSeconds = u.PositionSeconds
		case FieldVolume:
			out.Volume = u.Volume
		case FieldRating:
			out.Rating = u.Rating
		case FieldRepeatMode:
			out.RepeatMode = u.RepeatMode
		case FieldShuffleActive:
			out.ShuffleActive = u.ShuffleActive
		case FieldPlayerControls:
			out.PlayerControls = u.PlayerControls
		}
	}
	return out
}

// Changes summarizes what an Apply call altered.
type Changes struct {
	Fields      []Field
	Significant bool
}

func (c Changes) Has(f Field) bool {
	for _, got := range c.Fields {
		if got == f {
			return true
		}
	}
	return false
}

// Apply merges u into m. Timestamp advances to now only when state or title
// changes, or when volume changes while the player is playing.
func (m *MediaInfo) Apply(u MediaUpdate, now time.Time) Changes {
	var c Changes
	merge(&c, FieldPlayerName, &m.PlayerName, u.PlayerName)
	merge(&c, FieldState, &m.State, u.State)
	merge(&c, FieldTitle, &m.Title, u.Title)
	merge(&c, FieldArtist, &m.Artist, u.Artist)
	merge(&c, FieldAlbum, &m.Album, u.Album)
	merge(&c, FieldCoverURL, &m.CoverURL, u.CoverURL)
	merge(&c, FieldDurationSeconds, &m.DurationSeconds, u.DurationSeconds)
	merge(&c, FieldPositionSeconds, &m.PositionSeconds, u.PositionSeconds)
	merge(&c, FieldVolume, &m.Volume, u.Volume)
	merge(&c, FieldRating, &m.Rating, u.Rating)
	merge(&c, FieldRepeatMode, &m.RepeatMode, u.RepeatMode)
	merge(&c, FieldShuffleActive, &m.ShuffleActive, u.ShuffleActive)
	merge(&c, FieldPlayerControls, &m.PlayerControls, u.PlayerControls)

	if c.Has(FieldState) || c.Has(FieldTitle) || (c.Has(FieldVolume) && m.State == StatePlaying) {
		c.Significant = true
		m.Timestamp = now
	}
	return c
}

func merge[T comparable](c *Changes, f Field, dst *T, src *T) {
	if src == nil || *src == *dst {
		return
	}
	*dst = *src
	c.Fields = append(c.Fields, f)
}
