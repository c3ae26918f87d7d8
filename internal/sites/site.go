// Package sites holds the per-website player contract and turns a site's
// partial capabilities into full snapshots and executable commands.
package sites

import (
	"context"
	"net/url"

	"wnpbridge/internal/models"
)

// Getter reads one player property. ok is false when the site cannot
// report the value right now.
type Getter[T any] func(ctx context.Context) (v T, ok bool)

// Info lists the readable properties of a site. Nil getters are absent.
type Info struct {
	State    Getter[models.PlaybackState]
	Title    Getter[string]
	Artist   Getter[string]
	Album    Getter[string]
	CoverURL Getter[string]
	Duration Getter[int]
	Position Getter[int]
	Volume   Getter[int]
	Rating   Getter[int]
	Repeat   Getter[models.RepeatMode]
	Shuffle  Getter[bool]
}

// Events lists the actions a site can perform. Nil events are unsupported.
type Events struct {
	TogglePlaying func(ctx context.Context) error
	Play          func(ctx context.Context) error
	Pause         func(ctx context.Context) error
	SkipPrevious  func(ctx context.Context) error
	SkipNext      func(ctx context.Context) error
	SetPosition   func(ctx context.Context, seconds int) error
	SetVolume     func(ctx context.Context, volume int) error
	SetRating     func(ctx context.Context, rating int) error
	SetRepeat     func(ctx context.Context, mode models.RepeatMode) error
	ToggleRepeat  func(ctx context.Context) error
	SetShuffle    func(ctx context.Context, on bool) error
	ToggleShuffle func(ctx context.Context) error
}

// Site is one website's player integration.
type Site struct {
	Name  string
	Match func(u *url.URL) bool
	// Ready reports whether the page's player has loaded. Nil means always.
	Ready func(ctx context.Context) bool

	Info   Info
	Events Events

	RatingSystem    models.RatingSystem
	AvailableRepeat models.RepeatSet
}

// Controls derives the capability descriptor from the events present.
func (s *Site) Controls() models.Controls {
	e := s.Events
	rating := s.RatingSystem
	if rating == "" {
		rating = models.RatingNone
	}
	return models.Controls{
		SupportsPlayPause:           e.TogglePlaying != nil || (e.Play != nil && e.Pause != nil),
		SupportsSkipPrevious:        e.SkipPrevious != nil,
		SupportsSkipNext:            e.SkipNext != nil,
		SupportsSetPosition:         e.SetPosition != nil,
		SupportsSetVolume:           e.SetVolume != nil,
		SupportsToggleRepeatMode:    e.SetRepeat != nil || e.ToggleRepeat != nil,
		SupportsToggleShuffleActive: e.SetShuffle != nil || e.ToggleShuffle != nil,
		SupportsSetRating:           e.SetRating != nil && rating != models.RatingNone,
		RatingSystem:                rating,
		AvailableRepeat:             s.AvailableRepeat,
	}
}

func (s *Site) ready(ctx context.Context) bool {
	return s.Ready == nil || s.Ready(ctx)
}
