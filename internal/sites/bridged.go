package sites

import (
	"context"
	"encoding/json"
	"log"
	"net/url"

	"wnpbridge/internal/models"
	"wnpbridge/internal/pagebridge"
)

// Page function names. Getters are "get" + the field name in title case,
// events use their action name in camel case.
const (
	FuncIsReady       = "isReady"
	FuncGetState      = "getState"
	FuncGetTitle      = "getTitle"
	FuncGetArtist     = "getArtist"
	FuncGetAlbum      = "getAlbum"
	FuncGetCoverURL   = "getCoverUrl"
	FuncGetDuration   = "getDurationSeconds"
	FuncGetPosition   = "getPositionSeconds"
	FuncGetVolume     = "getVolume"
	FuncGetRating     = "getRating"
	FuncGetRepeat     = "getRepeatMode"
	FuncGetShuffle    = "getShuffleActive"
	FuncTogglePlaying = "togglePlaying"
	FuncPlay          = "play"
	FuncPause         = "pause"
	FuncSkipPrevious  = "skipPrevious"
	FuncSkipNext      = "skipNext"
	FuncSetPosition   = "setPositionSeconds"
	FuncSetVolume     = "setVolume"
	FuncSetRating     = "setRating"
	FuncSetRepeat     = "setRepeatMode"
	FuncToggleRepeat  = "toggleRepeatMode"
	FuncSetShuffle    = "setShuffleActive"
	FuncToggleShuffle = "toggleShuffleActive"
)

// BridgeSpec declares which page functions a bridged site implements.
type BridgeSpec struct {
	Name            string
	Match           func(*url.URL) bool
	Funcs           []string
	RatingSystem    models.RatingSystem
	AvailableRepeat models.RepeatSet
}

// Bridged builds a Site whose getters and events run inside the page realm
// through c. Functions missing from spec.Funcs stay nil.
func Bridged(spec BridgeSpec, c *pagebridge.Client) *Site {
	has := make(map[string]bool, len(spec.Funcs))
	for _, f := range spec.Funcs {
		has[f] = true
	}
	name := spec.Name
	b := bridge{c: c, site: name}

	s := &Site{
		Name:            name,
		Match:           spec.Match,
		RatingSystem:    spec.RatingSystem,
		AvailableRepeat: spec.AvailableRepeat,
	}
	if has[FuncIsReady] {
		ready := bridgedGetter[bool](b, FuncIsReady)
		s.Ready = func(ctx context.Context) bool {
			v, ok := ready(ctx)
			return ok && v
		}
	}

	s.Info = Info{
		State:    optional(has, FuncGetState, bridgedGetter[models.PlaybackState](b, FuncGetState)),
		Title:    optional(has, FuncGetTitle, bridgedGetter[string](b, FuncGetTitle)),
		Artist:   optional(has, FuncGetArtist, bridgedGetter[string](b, FuncGetArtist)),
		Album:    optional(has, FuncGetAlbum, bridgedGetter[string](b, FuncGetAlbum)),
		CoverURL: optional(has, FuncGetCoverURL, bridgedGetter[string](b, FuncGetCoverURL)),
		Duration: optional(has, FuncGetDuration, bridgedNumber(b, FuncGetDuration)),
		Position: optional(has, FuncGetPosition, bridgedNumber(b, FuncGetPosition)),
		Volume:   optional(has, FuncGetVolume, bridgedNumber(b, FuncGetVolume)),
		Rating:   optional(has, FuncGetRating, bridgedNumber(b, FuncGetRating)),
		Repeat:   optional(has, FuncGetRepeat, bridgedGetter[models.RepeatMode](b, FuncGetRepeat)),
		Shuffle:  optional(has, FuncGetShuffle, bridgedGetter[bool](b, FuncGetShuffle)),
	}

	s.Events = Events{
		TogglePlaying: optional(has, FuncTogglePlaying, b.action(FuncTogglePlaying)),
		Play:          optional(has, FuncPlay, b.action(FuncPlay)),
		Pause:         optional(has, FuncPause, b.action(FuncPause)),
		SkipPrevious:  optional(has, FuncSkipPrevious, b.action(FuncSkipPrevious)),
		SkipNext:      optional(has, FuncSkipNext, b.action(FuncSkipNext)),
		SetPosition:   optional(has, FuncSetPosition, bridgedSetter[int](b, FuncSetPosition)),
		SetVolume:     optional(has, FuncSetVolume, bridgedSetter[int](b, FuncSetVolume)),
		SetRating:     optional(has, FuncSetRating, bridgedSetter[int](b, FuncSetRating)),
		SetRepeat:     optional(has, FuncSetRepeat, bridgedSetter[models.RepeatMode](b, FuncSetRepeat)),
		ToggleRepeat:  optional(has, FuncToggleRepeat, b.action(FuncToggleRepeat)),
		SetShuffle:    optional(has, FuncSetShuffle, bridgedSetter[bool](b, FuncSetShuffle)),
		ToggleShuffle: optional(has, FuncToggleShuffle, b.action(FuncToggleShuffle)),
	}
	return s
}

func optional[F any](has map[string]bool, fn string, f F) F {
	if has[fn] {
		return f
	}
	var zero F
	return zero
}

type bridge struct {
	c    *pagebridge.Client
	site string
}

func (b bridge) action(fn string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := b.c.Call(ctx, b.site, fn)
		return err
	}
}

func bridgedSetter[T any](b bridge, fn string) func(ctx context.Context, v T) error {
	return func(ctx context.Context, v T) error {
		_, err := b.c.Call(ctx, b.site, fn, v)
		return err
	}
}

func bridgedGetter[T any](b bridge, fn string) Getter[T] {
	return func(ctx context.Context) (T, bool) {
		var v T
		raw, err := b.c.Call(ctx, b.site, fn)
		if err != nil {
			log.Printf("site %s: %s: %v", b.site, fn, err)
			return v, false
		}
		if len(raw) == 0 || string(raw) == "null" {
			return v, false
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return v, false
		}
		return v, true
	}
}

// bridgedNumber reads a JSON number, truncating fractional values the way
// media elements report seconds.
func bridgedNumber(b bridge, fn string) Getter[int] {
	get := bridgedGetter[float64](b, fn)
	return func(ctx context.Context) (int, bool) {
		f, ok := get(ctx)
		return int(f), ok
	}
}

// GenericSpec is the fallback player driven through any page's media
// element.
func GenericSpec() BridgeSpec {
	return BridgeSpec{
		Name: "Generic",
		Funcs: []string{
			FuncIsReady, FuncGetState, FuncGetTitle, FuncGetArtist, FuncGetAlbum, FuncGetCoverURL,
			FuncGetDuration, FuncGetPosition, FuncGetVolume, FuncGetRepeat,
			FuncTogglePlaying, FuncPlay, FuncPause, FuncSetPosition, FuncSetVolume, FuncSetRepeat,
		},
		RatingSystem:    models.RatingNone,
		AvailableRepeat: models.RepeatSetNone | models.RepeatSetOne,
	}
}
