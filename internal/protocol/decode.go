package protocol

import (
	"strconv"
	"strings"

	"wnpbridge/internal/models"
)

// Decode parses one inbound command frame using the grammar of rev. It
// returns false for unknown or malformed commands, which callers ignore.
func Decode(rev models.Revision, frame string) (models.Command, bool) {
	frame = strings.TrimSpace(frame)
	if frame == "" {
		return models.Command{}, false
	}
	switch rev {
	case models.RevisionLegacy:
		return decodeToken(legacyTokens, frame)
	case models.Revision1:
		return decodeToken(rev1Tokens, frame)
	case models.Revision2:
		return decodeRev2(frame)
	case models.Revision3:
		return decodeRev3(frame)
	}
	return models.Command{}, false
}

// legacy and revision 1 share actions but spell the tokens differently.
var legacyTokens = map[string]models.Action{
	"PLAYPAUSE":        models.ActionTogglePlaying,
	"PREVIOUS":         models.ActionSkipPrevious,
	"NEXT":             models.ActionSkipNext,
	"SETPOSITION":      models.ActionSetPosition,
	"SETVOLUME":        models.ActionSetVolume,
	"REPEAT":           models.ActionToggleRepeat,
	"SHUFFLE":          models.ActionToggleShuffle,
	"TOGGLETHUMBSUP":   models.ActionToggleThumbsUp,
	"TOGGLETHUMBSDOWN": models.ActionToggleThumbsDown,
	"RATING":           models.ActionSetRating,
}

var rev1Tokens = map[string]models.Action{
	"TOGGLE_PLAYING":     models.ActionTogglePlaying,
	"PREVIOUS":           models.ActionSkipPrevious,
	"NEXT":               models.ActionSkipNext,
	"SET_POSITION":       models.ActionSetPosition,
	"SET_VOLUME":         models.ActionSetVolume,
	"TOGGLE_REPEAT":      models.ActionToggleRepeat,
	"TOGGLE_SHUFFLE":     models.ActionToggleShuffle,
	"TOGGLE_THUMBS_UP":   models.ActionToggleThumbsUp,
	"TOGGLE_THUMBS_DOWN": models.ActionToggleThumbsDown,
	"SET_RATING":         models.ActionSetRating,
}

func decodeToken(tokens map[string]models.Action, frame string) (models.Command, bool) {
	token, data, _ := strings.Cut(frame, " ")
	action, ok := tokens[strings.ToUpper(token)]
	if !ok {
		return models.Command{}, false
	}
	cmd := models.Command{Action: action}
	switch action {
	case models.ActionSetPosition:
		// "<seconds>:<percent>"; only the seconds are used.
		secs, _, _ := strings.Cut(strings.TrimSpace(data), ":")
		v, ok := parseNumber(secs)
		if !ok {
			return models.Command{}, false
		}
		cmd.Value = v
	case models.ActionSetVolume:
		data = strings.TrimSpace(data)
		v, ok := parseNumber(data)
		if !ok {
			return models.Command{}, false
		}
		cmd.Value = v
		cmd.Relative = strings.HasPrefix(data, "+") || strings.HasPrefix(data, "-")
	case models.ActionSetRating:
		v, ok := parseNumber(strings.TrimSpace(data))
		if !ok {
			return models.Command{}, false
		}
		cmd.Value = v
	}
	return cmd, true
}

var rev2Actions = map[string]models.Action{
	"TRY_SET_STATE":     models.ActionSetState,
	"TRY_SKIP_PREVIOUS": models.ActionSkipPrevious,
	"TRY_SKIP_NEXT":     models.ActionSkipNext,
	"TRY_SET_POSITION":  models.ActionSetPosition,
	"TRY_SET_VOLUME":    models.ActionSetVolume,
	"TRY_SET_RATING":    models.ActionSetRating,
	"TRY_SET_REPEAT":    models.ActionSetRepeat,
	"TRY_SET_SHUFFLE":   models.ActionSetShuffle,
	"TRY_TOGGLE_REPEAT": models.ActionToggleRepeat,
}

func decodeRev2(frame string) (models.Command, bool) {
	token, data, _ := strings.Cut(frame, " ")
	action, ok := rev2Actions[strings.ToUpper(token)]
	if !ok {
		return models.Command{}, false
	}
	return decodeValue(action, strings.TrimSpace(data))
}

// rev3Opcodes is indexed by the numeric opcode on the wire.
var rev3Opcodes = []models.Action{
	models.ActionSetState,
	models.ActionSkipPrevious,
	models.ActionSkipNext,
	models.ActionSetPosition,
	models.ActionSetVolume,
	models.ActionSetRating,
	models.ActionSetRepeat,
	models.ActionSetShuffle,
	models.ActionToggleRepeat,
}

func decodeRev3(frame string) (models.Command, bool) {
	op, data, _ := strings.Cut(frame, " ")
	n, err := strconv.Atoi(op)
	if err != nil || n < 0 || n >= len(rev3Opcodes) {
		return models.Command{}, false
	}
	return decodeValue(rev3Opcodes[n], strings.TrimSpace(data))
}

// decodeValue parses the explicit target value carried by rev2/rev3 commands.
func decodeValue(action models.Action, data string) (models.Command, bool) {
	cmd := models.Command{Action: action}
	switch action {
	case models.ActionSetState:
		st := models.PlaybackState(strings.ToUpper(data))
		if !st.Valid() {
			return models.Command{}, false
		}
		cmd.State = st
	case models.ActionSetPosition, models.ActionSetVolume, models.ActionSetRating:
		v, ok := parseNumber(data)
		if !ok {
			return models.Command{}, false
		}
		cmd.Value = v
	case models.ActionSetRepeat:
		r := models.RepeatMode(strings.ToUpper(data))
		if !r.Valid() {
			return models.Command{}, false
		}
		cmd.Repeat = r
	case models.ActionSetShuffle:
		b, err := strconv.ParseBool(data)
		if err != nil {
			return models.Command{}, false
		}
		cmd.Shuffle = b
	}
	return cmd, true
}

// parseNumber accepts integers and decimals, truncating toward zero.
func parseNumber(s string) (int, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
