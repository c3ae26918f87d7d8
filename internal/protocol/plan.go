package protocol

import (
	"fmt"

	"wnpbridge/internal/models"
)

// repeatCycle is the order toggle-repeat walks through.
var repeatCycle = []models.RepeatMode{models.RepeatNone, models.RepeatAll, models.RepeatOne}

// Plan resolves cmd against the current player into the primitive commands
// to run on its tab, in order. A nil slice with a nil error means the
// command is already satisfied. Unsupported commands return an error
// wrapping models.ErrUnsupported.
func Plan(cmd models.Command, info models.MediaInfo) ([]models.Command, error) {
	controls := info.PlayerControls
	if !controls.Allows(cmd.Action) {
		return nil, fmt.Errorf("%s: %w", cmd.Action, models.ErrUnsupported)
	}

	prim := func(c models.Command) models.Command {
		c.CommunicationRevision = cmd.CommunicationRevision
		c.EventID = cmd.EventID
		c.EventSocketPort = cmd.EventSocketPort
		return c
	}

	switch cmd.Action {
	case models.ActionSkipPrevious:
		// Some players only restart the track on previous, so seek first.
		if controls.SupportsSetPosition {
			return []models.Command{
				prim(models.Command{Action: models.ActionSetPosition, Value: 0}),
				prim(models.Command{Action: models.ActionSkipPrevious}),
			}, nil
		}
		return []models.Command{prim(models.Command{Action: models.ActionSkipPrevious})}, nil

	case models.ActionSetPosition:
		pos := max(cmd.Value, 0)
		if info.DurationSeconds > 0 {
			pos = min(pos, info.DurationSeconds)
		}
		return []models.Command{prim(models.Command{Action: models.ActionSetPosition, Value: pos})}, nil

	case models.ActionSetVolume:
		vol := cmd.Value
		if cmd.Relative {
			vol = info.Volume + cmd.Value
		}
		vol = max(0, min(vol, 100))
		return []models.Command{prim(models.Command{Action: models.ActionSetVolume, Value: vol})}, nil

	case models.ActionSetRating:
		return []models.Command{prim(models.Command{Action: models.ActionSetRating, Value: scaleRating(controls.RatingSystem, cmd.Value)})}, nil

	case models.ActionToggleThumbsUp:
		next := 5
		if info.Rating == 5 {
			next = 0
		}
		return []models.Command{prim(models.Command{Action: models.ActionSetRating, Value: next})}, nil

	case models.ActionToggleThumbsDown:
		if controls.RatingSystem == models.RatingLike {
			return nil, fmt.Errorf("%s on like-only rating: %w", cmd.Action, models.ErrUnsupported)
		}
		next := 1
		if info.Rating == 1 {
			next = 0
		}
		return []models.Command{prim(models.Command{Action: models.ActionSetRating, Value: next})}, nil

	case models.ActionToggleRepeat:
		next := NextRepeat(info.RepeatMode, controls.AvailableRepeat)
		if next == info.RepeatMode {
			return nil, nil
		}
		return []models.Command{prim(models.Command{Action: models.ActionSetRepeat, Repeat: next})}, nil

	case models.ActionSetRepeat:
		if !effectiveRepeat(controls.AvailableRepeat).Has(cmd.Repeat) {
			return nil, fmt.Errorf("repeat mode %s: %w", cmd.Repeat, models.ErrUnsupported)
		}
		if cmd.Repeat == info.RepeatMode {
			return nil, nil
		}
		return []models.Command{prim(models.Command{Action: models.ActionSetRepeat, Repeat: cmd.Repeat})}, nil

	case models.ActionSetShuffle:
		if cmd.Shuffle == info.ShuffleActive {
			return nil, nil
		}
		return []models.Command{prim(models.Command{Action: models.ActionSetShuffle, Shuffle: cmd.Shuffle})}, nil

	case models.ActionSetState:
		if cmd.State == info.State {
			return nil, nil
		}
		return []models.Command{prim(models.Command{Action: models.ActionSetState, State: cmd.State})}, nil
	}

	return []models.Command{prim(models.Command{Action: cmd.Action})}, nil
}

// NextRepeat returns the mode after current in the toggle cycle, skipping
// modes missing from available. It returns current when nothing else is
// available.
func NextRepeat(current models.RepeatMode, available models.RepeatSet) models.RepeatMode {
	available = effectiveRepeat(available)
	start := 0
	for i, m := range repeatCycle {
		if m == current {
			start = i
			break
		}
	}
	for step := 1; step <= len(repeatCycle); step++ {
		m := repeatCycle[(start+step)%len(repeatCycle)]
		if available.Has(m) {
			return m
		}
	}
	return current
}

// effectiveRepeat treats an empty mask as every mode being available.
func effectiveRepeat(s models.RepeatSet) models.RepeatSet {
	if s == 0 {
		return models.RepeatSetNone | models.RepeatSetOne | models.RepeatSetAll
	}
	return s
}

// scaleRating maps a 0-5 request onto the player's rating system.
func scaleRating(sys models.RatingSystem, v int) int {
	v = max(0, min(v, 5))
	switch sys {
	case models.RatingLike:
		if v >= 3 {
			return 5
		}
		return 0
	case models.RatingLikeDislike:
		switch {
		case v >= 3:
			return 5
		case v > 0:
			return 1
		}
		return 0
	}
	return v
}
