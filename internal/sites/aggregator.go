package sites

import (
	"context"
	"errors"
	"fmt"

	"wnpbridge/internal/models"
	"wnpbridge/internal/protocol"
)

// maxRepeatToggles bounds the toggles used to reach a repeat mode on sites
// that can only cycle through modes.
const maxRepeatToggles = 3

var errRepeatUnreached = errors.New("repeat mode not reached")

// Aggregator exposes a Site as a complete player.
type Aggregator struct {
	site *Site
}

func NewAggregator(site *Site) *Aggregator {
	return &Aggregator{site: site}
}

func (a *Aggregator) Site() *Site { return a.site }

// GetPlayer returns a full snapshot of the site's player with every field
// present. Values the site cannot report fall back to the stopped defaults.
// ok is false while the site's player is not ready.
func (a *Aggregator) GetPlayer(ctx context.Context) (models.MediaUpdate, bool) {
	if !a.site.ready(ctx) {
		return models.MediaUpdate{}, false
	}
	def := models.DefaultMediaInfo()
	in := a.site.Info

	info := models.MediaInfo{
		PlayerName:      a.site.Name,
		State:           read(ctx, in.State, def.State),
		Title:           read(ctx, in.Title, ""),
		Artist:          read(ctx, in.Artist, ""),
		Album:           read(ctx, in.Album, ""),
		CoverURL:        read(ctx, in.CoverURL, ""),
		DurationSeconds: max(read(ctx, in.Duration, 0), 0),
		PositionSeconds: max(read(ctx, in.Position, 0), 0),
		Volume:          max(0, min(read(ctx, in.Volume, def.Volume), 100)),
		Rating:          max(0, min(read(ctx, in.Rating, 0), 5)),
		RepeatMode:      read(ctx, in.Repeat, def.RepeatMode),
		ShuffleActive:   read(ctx, in.Shuffle, false),
		PlayerControls:  a.site.Controls(),
	}
	if !info.State.Valid() {
		info.State = def.State
	}
	if !info.RepeatMode.Valid() {
		info.RepeatMode = def.RepeatMode
	}
	return info.AsUpdate(), true
}

func read[T any](ctx context.Context, g Getter[T], fallback T) T {
	if g == nil {
		return fallback
	}
	v, ok := g(ctx)
	if !ok {
		return fallback
	}
	return v
}

// Execute runs one primitive command against the site. Commands whose
// capability the site lacks fail with models.ErrUnsupported.
func (a *Aggregator) Execute(ctx context.Context, cmd models.Command) error {
	if !a.site.Controls().Allows(cmd.Action) {
		return fmt.Errorf("%s on %s: %w", cmd.Action, a.site.Name, models.ErrUnsupported)
	}
	e := a.site.Events
	in := a.site.Info

	switch cmd.Action {
	case models.ActionTogglePlaying:
		if e.TogglePlaying != nil {
			return e.TogglePlaying(ctx)
		}
		if read(ctx, in.State, models.StateStopped) == models.StatePlaying {
			return e.Pause(ctx)
		}
		return e.Play(ctx)

	case models.ActionSetState:
		return a.setState(ctx, cmd.State)

	case models.ActionSkipPrevious:
		return e.SkipPrevious(ctx)

	case models.ActionSkipNext:
		return e.SkipNext(ctx)

	case models.ActionSetPosition:
		return e.SetPosition(ctx, cmd.Value)

	case models.ActionSetVolume:
		return e.SetVolume(ctx, cmd.Value)

	case models.ActionSetRating:
		return e.SetRating(ctx, cmd.Value)

	case models.ActionSetRepeat:
		return a.setRepeat(ctx, cmd.Repeat)

	case models.ActionToggleRepeat:
		if e.ToggleRepeat != nil {
			return e.ToggleRepeat(ctx)
		}
		current := read(ctx, in.Repeat, models.RepeatNone)
		return e.SetRepeat(ctx, protocol.NextRepeat(current, a.site.AvailableRepeat))

	case models.ActionSetShuffle:
		if e.SetShuffle != nil {
			return e.SetShuffle(ctx, cmd.Shuffle)
		}
		if read(ctx, in.Shuffle, false) == cmd.Shuffle {
			return nil
		}
		return e.ToggleShuffle(ctx)

	case models.ActionToggleShuffle:
		if e.ToggleShuffle != nil {
			return e.ToggleShuffle(ctx)
		}
		return e.SetShuffle(ctx, !read(ctx, in.Shuffle, false))
	}
	return fmt.Errorf("%s: %w", cmd.Action, models.ErrUnsupported)
}

func (a *Aggregator) setState(ctx context.Context, want models.PlaybackState) error {
	e := a.site.Events
	playing := read(ctx, a.site.Info.State, models.StateStopped) == models.StatePlaying
	if want == models.StatePlaying {
		if e.Play != nil {
			return e.Play(ctx)
		}
		if playing {
			return nil
		}
		return e.TogglePlaying(ctx)
	}
	if e.Pause != nil {
		return e.Pause(ctx)
	}
	if !playing {
		return nil
	}
	return e.TogglePlaying(ctx)
}

func (a *Aggregator) setRepeat(ctx context.Context, want models.RepeatMode) error {
	e := a.site.Events
	if e.SetRepeat != nil {
		return e.SetRepeat(ctx, want)
	}
	if a.site.Info.Repeat == nil {
		return fmt.Errorf("set repeat without a readable mode: %w", models.ErrUnsupported)
	}
	for range maxRepeatToggles {
		if read(ctx, a.site.Info.Repeat, models.RepeatNone) == want {
			return nil
		}
		if err := e.ToggleRepeat(ctx); err != nil {
			return err
		}
	}
	if read(ctx, a.site.Info.Repeat, models.RepeatNone) == want {
		return nil
	}
	return fmt.Errorf("%s: %w", want, errRepeatUnreached)
}
