package matrix

import (
	"sort"
	"strings"
	"time"
)

// Membership states.
const (
	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
	MembershipKnock  = "knock"
)

// Member is a user's membership in a room.
type Member struct {
	UserID      string
	DisplayName string
	AvatarURL   string
	Membership  string
}

// Name returns the display name, falling back to the user ID.
func (m *Member) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.UserID
}

// TimelineEntry summarises the most recent message in a room.
type TimelineEntry struct {
	EventID   string
	Sender    string
	Body      string
	Timestamp time.Time
}

// Room is a snapshot of a joined room built from sync.
type Room struct {
	ID             string
	Name           string
	Topic          string
	CanonicalAlias string
	Encrypted      bool
	Creator        string
	CreatedAt      time.Time
	Members        map[string]*Member

	PowerLevels    PowerLevels
	HasPowerLevels bool

	NotificationCount int
	HighlightCount    int

	LastMessage  *TimelineEntry
	LastActivity time.Time
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		Members: map[string]*Member{},
	}
}

// DisplayName computes a human readable name: the room name, the canonical
// alias, the other members' names, or the room ID.
func (r *Room) DisplayName(self string) string {
	if r.Name != "" {
		return r.Name
	}
	if r.CanonicalAlias != "" {
		return r.CanonicalAlias
	}
	var names []string
	for _, m := range r.JoinedMembers() {
		if m.UserID == self {
			continue
		}
		names = append(names, m.Name())
	}
	switch len(names) {
	case 0:
		return r.ID
	case 1, 2, 3:
		return strings.Join(names, ", ")
	default:
		return strings.Join(names[:3], ", ") + " and others"
	}
}

// JoinedMembers returns the joined members ordered by user ID.
func (r *Room) JoinedMembers() []*Member {
	return r.membersWith(MembershipJoin)
}

// Membership returns userID's membership, "" if unknown.
func (r *Room) Membership(userID string) string {
	if m, ok := r.Members[userID]; ok {
		return m.Membership
	}
	return ""
}

func (r *Room) membersWith(membership string) []*Member {
	var out []*Member
	for _, m := range r.Members {
		if m.Membership == membership {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// DirectPeer returns the other member of a two-person room.
func (r *Room) DirectPeer(self string) (*Member, bool) {
	joined := r.JoinedMembers()
	if len(joined) != 2 {
		return nil, false
	}
	for _, m := range joined {
		if m.UserID != self {
			return m, true
		}
	}
	return nil, false
}

// EffectivePowerLevels returns the room's power levels, or the defaults
// for a room that has none.
func (r *Room) EffectivePowerLevels() PowerLevels {
	if r.HasPowerLevels {
		return r.PowerLevels
	}
	return DefaultPowerLevels(r.Creator)
}

func (r *Room) clone() *Room {
	out := *r
	out.Members = make(map[string]*Member, len(r.Members))
	for k, m := range r.Members {
		mc := *m
		out.Members[k] = &mc
	}
	out.PowerLevels = r.PowerLevels.clone()
	if r.LastMessage != nil {
		lm := *r.LastMessage
		out.LastMessage = &lm
	}
	return &out
}
