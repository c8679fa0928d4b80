package matrix

// Power level defaults from the Matrix specification.
const (
	defaultStateLevel    = 50
	defaultModerateLevel = 50
	creatorLevel         = 100
)

// PowerLevels is the content of a room's m.room.power_levels event.
type PowerLevels struct {
	Users         map[string]int
	UsersDefault  int
	Events        map[string]int
	EventsDefault int
	StateDefault  int
	Invite        int
	Kick          int
	Ban           int
	Redact        int
}

// DefaultPowerLevels returns the levels of a room without a power levels
// event. The creator gets 100 and state events need 0.
func DefaultPowerLevels(creator string) PowerLevels {
	pl := PowerLevels{
		Users:  map[string]int{},
		Events: map[string]int{},
		Kick:   defaultModerateLevel,
		Ban:    defaultModerateLevel,
		Redact: defaultModerateLevel,
	}
	if creator != "" {
		pl.Users[creator] = creatorLevel
	}
	return pl
}

// ParsePowerLevels reads power levels from event content. Missing fields
// take the specification defaults.
func ParsePowerLevels(content map[string]any) PowerLevels {
	pl := PowerLevels{
		Users:        map[string]int{},
		Events:       map[string]int{},
		StateDefault: defaultStateLevel,
		Kick:         defaultModerateLevel,
		Ban:          defaultModerateLevel,
		Redact:       defaultModerateLevel,
	}

	readInt := func(key string, dst *int) {
		if v, ok := intValue(content[key]); ok {
			*dst = v
		}
	}
	readInt("users_default", &pl.UsersDefault)
	readInt("events_default", &pl.EventsDefault)
	readInt("state_default", &pl.StateDefault)
	readInt("invite", &pl.Invite)
	readInt("kick", &pl.Kick)
	readInt("ban", &pl.Ban)
	readInt("redact", &pl.Redact)

	if users, ok := content["users"].(map[string]any); ok {
		for user, level := range users {
			if v, ok := intValue(level); ok {
				pl.Users[user] = v
			}
		}
	}
	if events, ok := content["events"].(map[string]any); ok {
		for eventType, level := range events {
			if v, ok := intValue(level); ok {
				pl.Events[eventType] = v
			}
		}
	}
	return pl
}

// UserLevel returns the power level of userID.
func (pl PowerLevels) UserLevel(userID string) int {
	if level, ok := pl.Users[userID]; ok {
		return level
	}
	return pl.UsersDefault
}

// MessageLevel returns the level required to send a message event.
func (pl PowerLevels) MessageLevel(eventType string) int {
	if level, ok := pl.Events[eventType]; ok {
		return level
	}
	return pl.EventsDefault
}

// StateLevel returns the level required to send a state event.
func (pl PowerLevels) StateLevel(eventType string) int {
	if level, ok := pl.Events[eventType]; ok {
		return level
	}
	return pl.StateDefault
}

// CanSendMessage reports whether userID may send m.room.message events.
func (pl PowerLevels) CanSendMessage(userID string) bool {
	return pl.UserLevel(userID) >= pl.MessageLevel(EventTypeMessage)
}

// CanSendState reports whether userID may send state events of eventType.
func (pl PowerLevels) CanSendState(userID, eventType string) bool {
	return pl.UserLevel(userID) >= pl.StateLevel(eventType)
}

// CanInvite reports whether userID may invite other users.
func (pl PowerLevels) CanInvite(userID string) bool {
	return pl.UserLevel(userID) >= pl.Invite
}

func (pl PowerLevels) clone() PowerLevels {
	out := pl
	out.Users = make(map[string]int, len(pl.Users))
	for k, v := range pl.Users {
		out.Users[k] = v
	}
	out.Events = make(map[string]int, len(pl.Events))
	for k, v := range pl.Events {
		out.Events[k] = v
	}
	return out
}
