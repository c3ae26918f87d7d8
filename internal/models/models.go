package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrBuiltIn is returned when removing an adapter that ships with the bridge.
	ErrBuiltIn = errors.New("built-in adapter")
)

// ErrUnsupported is returned when a command targets a player that does not
// declare the matching capability.
var ErrUnsupported = errors.New("unsupported by player")

// ErrNoPlayer is returned when no tab currently reports a player.
var ErrNoPlayer = errors.New("no active player")

type PlaybackState string

const (
	StateStopped PlaybackState = "STOPPED"
	StatePlaying PlaybackState = "PLAYING"
	StatePaused  PlaybackState = "PAUSED"
)

func (s PlaybackState) Valid() bool {
	switch s {
	case StateStopped, StatePlaying, StatePaused:
		return true
	}
	return false
}

type RepeatMode string

const (
	RepeatNone RepeatMode = "NONE"
	RepeatOne  RepeatMode = "ONE"
	RepeatAll  RepeatMode = "ALL"
)

func (r RepeatMode) Valid() bool {
	switch r {
	case RepeatNone, RepeatOne, RepeatAll:
		return true
	}
	return false
}

// Bit returns the RepeatSet flag for r, or 0 if r is not a known mode.
func (r RepeatMode) Bit() RepeatSet {
	switch r {
	case RepeatNone:
		return RepeatSetNone
	case RepeatOne:
		return RepeatSetOne
	case RepeatAll:
		return RepeatSetAll
	}
	return 0
}

// RepeatSet is a bitmask of the repeat modes a player can be put in.
type RepeatSet uint8

const (
	RepeatSetNone RepeatSet = 1 << iota
	RepeatSetOne
	RepeatSetAll
)

func (s RepeatSet) Has(mode RepeatMode) bool {
	bit := mode.Bit()
	return bit != 0 && s&bit != 0
}

type RatingSystem string

const (
	RatingNone        RatingSystem = "NONE"
	RatingLike        RatingSystem = "LIKE"
	RatingLikeDislike RatingSystem = "LIKE_DISLIKE"
	RatingScale       RatingSystem = "SCALE"
)

// Controls describes which transport commands the current player accepts.
type Controls struct {
	SupportsPlayPause           bool         `json:"supportsPlayPause"`
	SupportsSkipPrevious        bool         `json:"supportsSkipPrevious"`
	SupportsSkipNext            bool         `json:"supportsSkipNext"`
	SupportsSetPosition         bool         `json:"supportsSetPosition"`
	SupportsSetVolume           bool         `json:"supportsSetVolume"`
	SupportsToggleRepeatMode    bool         `json:"supportsToggleRepeatMode"`
	SupportsToggleShuffleActive bool         `json:"supportsToggleShuffleActive"`
	SupportsSetRating           bool         `json:"supportsSetRating"`
	RatingSystem                RatingSystem `json:"ratingSystem"`
	AvailableRepeat             RepeatSet    `json:"availableRepeat"`
}

// Allows reports whether the capability backing action is declared.
func (c Controls) Allows(action Action) bool {
	switch action {
	case ActionTogglePlaying, ActionSetState:
		return c.SupportsPlayPause
	case ActionSkipPrevious:
		return c.SupportsSkipPrevious
	case ActionSkipNext:
		return c.SupportsSkipNext
	case ActionSetPosition:
		return c.SupportsSetPosition
	case ActionSetVolume:
		return c.SupportsSetVolume
	case ActionSetRating, ActionToggleThumbsUp, ActionToggleThumbsDown:
		return c.SupportsSetRating && c.RatingSystem != RatingNone && c.RatingSystem != ""
	case ActionToggleRepeat, ActionSetRepeat:
		return c.SupportsToggleRepeatMode
	case ActionToggleShuffle, ActionSetShuffle:
		return c.SupportsToggleShuffleActive
	}
	return false
}

// MediaInfo is the normalized now-playing snapshot of one tab.
type MediaInfo struct {
	PlayerName      string        `json:"playerName"`
	State           PlaybackState `json:"state"`
	Title           string        `json:"title"`
	Artist          string        `json:"artist"`
	Album           string        `json:"album"`
	CoverURL        string        `json:"coverUrl"`
	DurationSeconds int           `json:"durationSeconds"`
	PositionSeconds int           `json:"positionSeconds"`
	Volume          int           `json:"volume"`
	Rating          int           `json:"rating"`
	RepeatMode      RepeatMode    `json:"repeatMode"`
	ShuffleActive   bool          `json:"shuffleActive"`
	Timestamp       time.Time     `json:"timestamp"`
	PlayerControls  Controls      `json:"playerControls"`
}

// DefaultMediaInfo is the snapshot reported when no tab has a player.
func DefaultMediaInfo() MediaInfo {
	return MediaInfo{
		State:          StateStopped,
		Volume:         100,
		RepeatMode:     RepeatNone,
		PlayerControls: Controls{RatingSystem: RatingNone},
	}
}

// Audible reports whether the player is playing with a non-zero volume.
func (m *MediaInfo) Audible() bool {
	return m.State == StatePlaying && m.Volume != 0
}
