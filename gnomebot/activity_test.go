package gnomebot

import (
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"testing"
	"time"
)

func (d *mockDiscordSession) Statuses() []discordgo.UpdateStatusData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]discordgo.UpdateStatusData(nil), d.statuses...)
}

func TestParseActivities_Embedded(t *testing.T) {
	t.Parallel()
	activities, err := parseActivities(activitiesYAML)
	require.NoError(t, err)
	require.NotEmpty(t, activities)
	assert.Equal(t, Activity{Name: "@GNOME Nepal", Type: "PLAYING"}, activities[0])
}

func TestParseActivities_Invalid(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name  string
		input string
		err   string
	}{
		{name: "not yaml", input: "- [", err: "error parsing activities"},
		{name: "empty name", input: "- type: PLAYING", err: "empty name"},
		{name: "unknown type", input: "- name: x\n  type: DANCING", err: `unknown activity type "DANCING"`},
	}
	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				_, err := parseActivities([]byte(tc.input))
				assert.ErrorContains(t, err, tc.err)
			},
		)
	}
}

func TestActivity_DiscordActivity(t *testing.T) {
	t.Parallel()
	a, err := Activity{Name: "Open Source", Type: "listening"}.discordActivity()
	require.NoError(t, err)
	assert.Equal(t, &discordgo.Activity{Name: "Open Source", Type: discordgo.ActivityTypeListening}, a)
}

func TestActivityRotator_Rotate(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	rotator := newActivityRotator(
		session,
		[]Activity{{Name: "a", Type: "PLAYING"}, {Name: "b", Type: "WATCHING"}},
		time.Hour,
		slog.Default(),
	)

	for range 3 {
		rotator.rotate()
	}
	statuses := session.Statuses()
	require.Len(t, statuses, 3)
	var names []string
	for _, s := range statuses {
		assert.Equal(t, string(discordgo.StatusOnline), s.Status)
		names = append(names, s.Activities[0].Name)
	}
	assert.Equal(t, []string{"a", "b", "a"}, names)
	assert.Equal(t, discordgo.ActivityTypeWatching, statuses[1].Activities[0].Type)
}

func TestActivityRotator_StartStop(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	rotator := newActivityRotator(
		session,
		[]Activity{{Name: "a", Type: "PLAYING"}, {Name: "b", Type: "WATCHING"}},
		time.Second,
		slog.Default(),
	)

	require.NoError(t, rotator.Start())
	assert.Len(t, session.Statuses(), 1, "first activity is set right away")

	require.Eventually(
		t,
		func() bool { return len(session.Statuses()) >= 2 },
		5*time.Second,
		50*time.Millisecond,
	)

	// restarting replaces the running schedule
	require.NoError(t, rotator.Start())
	rotator.Stop()
	n := len(session.Statuses())
	time.Sleep(1500 * time.Millisecond)
	assert.Len(t, session.Statuses(), n)
	rotator.Stop()
}

func TestActivityRotator_Empty(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	rotator := newActivityRotator(session, nil, time.Second, slog.Default())
	require.NoError(t, rotator.Start())
	rotator.Stop()
	assert.Empty(t, session.Statuses())
}
