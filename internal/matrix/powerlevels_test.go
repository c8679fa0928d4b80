package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePowerLevels(t *testing.T) {
	pl := ParsePowerLevels(map[string]any{
		"users":          map[string]any{"@admin:example.org": float64(100), "@mod:example.org": "50"},
		"users_default":  float64(0),
		"events":         map[string]any{"m.room.name": float64(50), "m.room.message": float64(10)},
		"events_default": float64(0),
		"invite":         float64(50),
	})

	assert.Equal(t, 100, pl.UserLevel("@admin:example.org"))
	assert.Equal(t, 50, pl.UserLevel("@mod:example.org"))
	assert.Equal(t, 0, pl.UserLevel("@user:example.org"))
	assert.Equal(t, defaultStateLevel, pl.StateDefault)

	assert.True(t, pl.CanSendMessage("@mod:example.org"))
	assert.False(t, pl.CanSendMessage("@user:example.org"))

	assert.True(t, pl.CanSendState("@mod:example.org", EventTypeName))
	assert.False(t, pl.CanSendState("@user:example.org", EventTypeName))
	// Falls back to state_default.
	assert.False(t, pl.CanSendState("@user:example.org", EventTypeTopic))

	assert.True(t, pl.CanInvite("@admin:example.org"))
	assert.False(t, pl.CanInvite("@user:example.org"))
}

func TestDefaultPowerLevels(t *testing.T) {
	pl := DefaultPowerLevels("@creator:example.org")

	assert.Equal(t, 100, pl.UserLevel("@creator:example.org"))
	assert.Equal(t, 0, pl.UserLevel("@other:example.org"))
	assert.True(t, pl.CanSendState("@other:example.org", EventTypeTopic))
	assert.True(t, pl.CanSendMessage("@other:example.org"))
	assert.True(t, pl.CanInvite("@other:example.org"))
}

func TestRoom_EffectivePowerLevels(t *testing.T) {
	room := newRoom("!r:example.org")
	room.Creator = "@creator:example.org"
	assert.Equal(t, 100, room.EffectivePowerLevels().UserLevel("@creator:example.org"))

	room.PowerLevels = ParsePowerLevels(map[string]any{})
	room.HasPowerLevels = true
	assert.Equal(t, 0, room.EffectivePowerLevels().UserLevel("@creator:example.org"))
}
