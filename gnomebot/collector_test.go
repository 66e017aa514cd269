package gnomebot

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync/atomic"
	"testing"
	"time"
)

type collectorEnd[T any] struct {
	collected []T
	reason    EndReason
}

func endChannel[T any]() (chan collectorEnd[T], func([]T, EndReason)) {
	ch := make(chan collectorEnd[T], 1)
	return ch, func(collected []T, reason EndReason) {
		ch <- collectorEnd[T]{collected: collected, reason: reason}
	}
}

func waitEnd[T any](t *testing.T, ch chan collectorEnd[T]) collectorEnd[T] {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("collector didn't end")
		return collectorEnd[T]{}
	}
}

func TestCollector_Max(t *testing.T) {
	t.Parallel()
	ended, onEnd := endChannel[int]()
	c := NewCollector(
		CollectorOptions[int]{
			Timeout: time.Hour,
			Max:     2,
			Filter:  func(i int) bool { return i%2 == 0 },
			OnEnd:   onEnd,
		},
	)
	c.Start(context.Background())

	assert.True(t, c.Push(1))
	assert.True(t, c.Push(2))
	assert.True(t, c.Push(3))
	assert.True(t, c.Push(4))

	e := waitEnd(t, ended)
	assert.Equal(t, EndReasonLimit, e.reason)
	assert.Equal(t, []int{2, 4}, e.collected)

	<-c.Done()
	assert.False(t, c.Push(6))
}

func TestCollector_OnCollectEnds(t *testing.T) {
	t.Parallel()
	ended, onEnd := endChannel[string]()
	var seen []string
	c := NewCollector(
		CollectorOptions[string]{
			Timeout: time.Hour,
			OnCollect: func(s string) EndReason {
				seen = append(seen, s)
				if s == "done" {
					return EndReasonUser
				}
				return ""
			},
			OnEnd: onEnd,
		},
	)
	c.Start(context.Background())
	c.Push("a")
	c.Push("done")

	e := waitEnd(t, ended)
	assert.Equal(t, EndReasonUser, e.reason)
	assert.Equal(t, []string{"a", "done"}, e.collected)
	assert.Equal(t, []string{"a", "done"}, seen)
}

func TestCollector_Timeout(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	ended, onEnd := endChannel[int]()
	ticks := make(chan time.Duration, 10)
	c := NewCollector(
		CollectorOptions[int]{
			Timeout: 30 * time.Second,
			Tick:    10 * time.Second,
			OnTick:  func(remaining time.Duration) { ticks <- remaining },
			OnEnd:   onEnd,
			Clock:   clock,
		},
	)
	c.Start(context.Background())

	require.Eventually(
		t,
		func() bool { return clock.Timers() == 1 },
		time.Second,
		time.Millisecond,
	)

	clock.Advance(10 * time.Second)
	select {
	case remaining := <-ticks:
		assert.Equal(t, 20*time.Second, remaining)
	case <-time.After(5 * time.Second):
		t.Fatal("no tick")
	}

	clock.Advance(20 * time.Second)
	e := waitEnd(t, ended)
	assert.Equal(t, EndReasonTime, e.reason)
	assert.Empty(t, e.collected)
}

func TestCollector_TimeoutRacesPush(t *testing.T) {
	t.Parallel()
	for i := 0; i < 100; i++ {
		clock := newFakeClock()
		var ends atomic.Int32
		c := NewCollector(
			CollectorOptions[int]{
				Timeout:   30 * time.Second,
				Clock:     clock,
				OnCollect: func(int) EndReason { return EndReasonUser },
				OnEnd:     func([]int, EndReason) { ends.Add(1) },
			},
		)
		c.Start(context.Background())
		require.Eventually(
			t,
			func() bool { return clock.Timers() == 1 },
			time.Second,
			time.Millisecond,
		)

		go clock.Advance(30 * time.Second)
		go c.Push(1)

		select {
		case <-c.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("collector didn't end")
		}
		assert.False(t, c.Push(2))
		require.EqualValues(t, 1, ends.Load())
	}
}

func TestCollector_CallbackPanics(t *testing.T) {
	t.Parallel()
	ended, onEnd := endChannel[int]()
	c := NewCollector(
		CollectorOptions[int]{
			Timeout: time.Hour,
			Max:     2,
			Filter: func(i int) bool {
				if i < 0 {
					panic("negative")
				}
				return true
			},
			OnCollect: func(i int) EndReason {
				if i == 1 {
					panic("one")
				}
				return ""
			},
			OnEnd: onEnd,
		},
	)
	c.Start(context.Background())

	assert.True(t, c.Push(-1))
	assert.True(t, c.Push(1))
	assert.True(t, c.Push(2))

	e := waitEnd(t, ended)
	assert.Equal(t, EndReasonLimit, e.reason)
	assert.Equal(t, []int{1, 2}, e.collected)
}

func TestCollector_OnEndPanics(t *testing.T) {
	t.Parallel()
	c := NewCollector(
		CollectorOptions[int]{
			Timeout: time.Hour,
			OnEnd:   func([]int, EndReason) { panic("end") },
		},
	)
	c.Start(context.Background())
	c.Stop(EndReasonUser)

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("collector didn't finish")
	}
}

func TestCollector_ContextCanceled(t *testing.T) {
	t.Parallel()
	ended, onEnd := endChannel[int]()
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCollector(CollectorOptions[int]{Timeout: time.Hour, OnEnd: onEnd})
	c.Start(ctx)
	cancel()
	assert.Equal(t, EndReasonContext, waitEnd(t, ended).reason)
}

func TestCollector_Stop(t *testing.T) {
	t.Parallel()
	ended, onEnd := endChannel[int]()
	c := NewCollector(CollectorOptions[int]{Timeout: time.Hour, OnEnd: onEnd})
	c.Start(context.Background())
	c.Stop(EndReasonUser)
	c.Stop(EndReasonTime)
	assert.Equal(t, EndReasonUser, waitEnd(t, ended).reason)
}

func TestCollectorHub_RouteComponent(t *testing.T) {
	t.Parallel()
	hub := newCollectorHub()
	session := newMockDiscordSession()
	ended, onEnd := endChannel[*Responder]()

	c := NewCollector(CollectorOptions[*Responder]{Timeout: time.Hour, Max: 1, OnEnd: onEnd})
	hub.WatchComponents(context.Background(), "msg-1", c)

	other := newTestResponder(session, componentInteraction("msg-2", "next", testUser))
	assert.False(t, hub.RouteComponent(other))

	r := newTestResponder(session, componentInteraction("msg-1", "next", testUser))
	assert.True(t, hub.RouteComponent(r))

	e := waitEnd(t, ended)
	require.Len(t, e.collected, 1)
	assert.Same(t, r, e.collected[0])

	hub.Wait()
	assert.False(t, hub.RouteComponent(r), "ended collectors are unregistered")
}

func TestCollectorHub_RouteModal(t *testing.T) {
	t.Parallel()
	hub := newCollectorHub()
	session := newMockDiscordSession()
	ended, onEnd := endChannel[*Responder]()

	c := NewCollector(CollectorOptions[*Responder]{Timeout: time.Hour, Max: 1, OnEnd: onEnd})
	hub.WatchModal(context.Background(), testUser.ID, "form", c)

	stranger := &discordgo.User{ID: "999"}
	assert.False(t, hub.RouteModal(newTestResponder(session, modalInteraction("form", stranger, nil))))
	assert.True(t, hub.RouteModal(newTestResponder(session, modalInteraction("form", testUser, nil))))
	assert.Equal(t, EndReasonLimit, waitEnd(t, ended).reason)
}

func TestCollectorHub_RouteMessage(t *testing.T) {
	t.Parallel()
	hub := newCollectorHub()
	ctx, cancel := context.WithCancel(context.Background())
	ended, onEnd := endChannel[*discordgo.Message]()

	c := NewCollector(CollectorOptions[*discordgo.Message]{Timeout: time.Hour, OnEnd: onEnd})
	hub.WatchMessages(ctx, "chan", testUser.ID, c)

	assert.False(t, hub.RouteMessage(&discordgo.Message{ChannelID: "other", Author: testUser}))
	assert.False(t, hub.RouteMessage(&discordgo.Message{ChannelID: "chan"}))
	assert.True(t, hub.RouteMessage(&discordgo.Message{ID: "m", ChannelID: "chan", Author: testUser}))

	cancel()
	e := waitEnd(t, ended)
	assert.Equal(t, EndReasonContext, e.reason)
	require.Len(t, e.collected, 1)
	assert.Equal(t, "m", e.collected[0].ID)
	hub.Wait()
}
