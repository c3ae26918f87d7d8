package models

// Action is a transport command understood by the tab side.
type Action string

const (
	ActionTogglePlaying    Action = "TOGGLE_PLAYING"
	ActionSetState         Action = "SET_STATE"
	ActionSkipPrevious     Action = "SKIP_PREVIOUS"
	ActionSkipNext         Action = "SKIP_NEXT"
	ActionSetPosition      Action = "SET_POSITION"
	ActionSetVolume        Action = "SET_VOLUME"
	ActionSetRating        Action = "SET_RATING"
	ActionToggleThumbsUp   Action = "TOGGLE_THUMBS_UP"
	ActionToggleThumbsDown Action = "TOGGLE_THUMBS_DOWN"
	ActionToggleRepeat     Action = "TOGGLE_REPEAT"
	ActionSetRepeat        Action = "SET_REPEAT"
	ActionToggleShuffle    Action = "TOGGLE_SHUFFLE"
	ActionSetShuffle       Action = "SET_SHUFFLE"
)

// Command is a decoded adapter request. Value carries seconds for
// SET_POSITION, 0-100 for SET_VOLUME and 0-5 for SET_RATING.
type Command struct {
	Action  Action        `json:"action"`
	State   PlaybackState `json:"state,omitempty"`
	Value   int           `json:"value,omitempty"`
	Repeat  RepeatMode    `json:"repeat,omitempty"`
	Shuffle bool          `json:"shuffle,omitempty"`

	// Relative makes Value a signed delta for SET_VOLUME.
	Relative bool `json:"relative,omitempty"`

	// CommunicationRevision is the protocol revision of the adapter that
	// issued the command, empty for local requests.
	CommunicationRevision Revision `json:"communicationRevision,omitempty"`

	// Set only for revision 3 commands, which are acknowledged.
	EventID         int64 `json:"eventId,omitempty"`
	EventSocketPort int   `json:"eventSocketPort,omitempty"`
}

// EventResult reports the outcome of a command back to the socket that
// received it.
type EventResult struct {
	EventID         int64  `json:"eventId"`
	EventSocketPort int    `json:"eventSocketPort"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
}
