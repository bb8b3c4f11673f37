package ui

import (
	"context"
	"time"

	"craftdeck/internal/config"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
)

// connectedMsg reports whether the event stream is currently up.
type connectedMsg bool

// eventBridge forwards event client callbacks into a bubbletea program.
// Events are delivered as the event values themselves, e.g.
// *events.ServerChangeStateEvent.
type eventBridge struct {
	ec   *events.Client
	ch   chan tea.Msg
	done chan struct{}
	subs []*events.Subscription
}

func newEventBridge(ec *events.Client) *eventBridge {
	b := &eventBridge{ec: ec, ch: make(chan tea.Msg, 256), done: make(chan struct{})}
	b.subs = append(b.subs,
		ec.AddEventListener(events.KindOpen, func(events.Event) { b.forward(connectedMsg(true)) }),
		ec.AddEventListener(events.KindClose, func(ev events.Event) {
			if ce, ok := ev.(*events.CloseEvent); ok && !ce.Intentional {
				b.forward(connectedMsg(false))
			}
		}),
	)
	return b
}

func (b *eventBridge) forward(msg tea.Msg) {
	select {
	case b.ch <- msg:
	case <-b.done:
	}
}

func (b *eventBridge) servers() *eventBridge {
	if b == nil {
		return nil
	}
	b.subs = append(b.subs,
		b.ec.OnStateChange(func(ev *events.ServerChangeStateEvent) { b.forward(ev) }),
		b.ec.OnPerformance(func(ev *events.PerformanceProgress) { b.forward(ev) }),
	)
	return b
}

func (b *eventBridge) console(serverID string) *eventBridge {
	if b == nil {
		return nil
	}
	b.subs = append(b.subs,
		b.ec.OnProcessRead(func(ev *events.ServerProcessReadEvent) {
			if ev.ServerID == serverID {
				b.forward(ev)
			}
		}),
		b.ec.OnStateChange(func(ev *events.ServerChangeStateEvent) {
			if ev.ServerID == serverID {
				b.forward(ev)
			}
		}),
	)
	return b
}

func (b *eventBridge) tasks(serverID string) *eventBridge {
	if b == nil {
		return nil
	}
	fn := func(ev *events.FileTaskEvent) {
		if ev.ServerID == serverID {
			b.forward(ev)
		}
	}
	b.subs = append(b.subs, b.ec.OnFileTaskStart(fn), b.ec.OnFileTaskEnd(fn))
	return b
}

// wait delivers the next event. A nil bridge never delivers.
func (b *eventBridge) wait() tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case msg := <-b.ch:
			return msg
		case <-b.done:
			return nil
		}
	}
}

func (b *eventBridge) Close() {
	if b == nil {
		return
	}
	for _, sub := range b.subs {
		b.ec.RemoveEventListener(sub)
	}
	close(b.done)
}

// session is the event stream shared by one program run. Without a stream
// the views fall back to polling.
type session struct {
	client *sdk.Client
	ec     *events.Client
	waiter *sdk.TaskWaiter
}

func openSession(client *sdk.Client, p config.Profile) *session {
	s := &session{client: client}
	if ec, err := client.NewEventClient(events.WithReconnectDelay(p.ReconnectDelay)); err == nil {
		s.ec = ec
	}
	s.waiter = sdk.NewTaskWaiter(s.ec, client.Files(), sdk.WaitPolicy{PollInterval: p.TaskPollInterval, Timeout: p.TaskTimeout})
	return s
}

func (s *session) bridge() *eventBridge {
	if s.ec == nil {
		return nil
	}
	return newEventBridge(s.ec)
}

// connect dials once b has subscribed, so replayed console history reaches
// it. On failure the session drops to polling and connect returns nil.
func (s *session) connect(b *eventBridge) *eventBridge {
	if s.ec == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.ec.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("Event stream unavailable, falling back to polling")
		b.Close()
		s.ec.Close()
		s.ec = nil
		return nil
	}
	return b
}

func (s *session) Close() {
	s.waiter.Close()
	if s.ec != nil {
		s.ec.Close()
	}
}
