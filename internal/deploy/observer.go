package deploy

import "sync"

// Observer receives the two events a deploy emits. Calls are made from the
// goroutine running Deploy, in order.
type Observer interface {
	OnStageChanged(stage Stage, status StageStatus)
	OnLogLine(stage Stage, text string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	StageChanged func(Stage, StageStatus)
	LogLine      func(Stage, string)
}

func (f ObserverFuncs) OnStageChanged(stage Stage, status StageStatus) {
	if f.StageChanged != nil {
		f.StageChanged(stage, status)
	}
}

func (f ObserverFuncs) OnLogLine(stage Stage, text string) {
	if f.LogLine != nil {
		f.LogLine(stage, text)
	}
}

// EventKind tells stage changes and log lines apart.
type EventKind int

const (
	EventStageChanged EventKind = iota
	EventLogLine
)

// Event is one observer callback delivered through a channel.
type Event struct {
	Kind   EventKind
	Stage  Stage
	Status StageStatus
	Text   string
}

// ChannelObserver forwards events to a channel. Sends block, so the reader
// must keep draining C until Deploy returns.
type ChannelObserver struct {
	ch   chan Event
	once sync.Once
}

// NewChannelObserver creates an observer with the given channel buffer.
func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{ch: make(chan Event, buffer)}
}

// C returns the event channel. It is closed by Close.
func (c *ChannelObserver) C() <-chan Event {
	return c.ch
}

func (c *ChannelObserver) OnStageChanged(stage Stage, status StageStatus) {
	c.ch <- Event{Kind: EventStageChanged, Stage: stage, Status: status}
}

func (c *ChannelObserver) OnLogLine(stage Stage, text string) {
	c.ch <- Event{Kind: EventLogLine, Stage: stage, Text: text}
}

// Close closes the channel. Call it only after Deploy has returned.
func (c *ChannelObserver) Close() {
	c.once.Do(func() { close(c.ch) })
}

type observers []Observer

func (o observers) OnStageChanged(stage Stage, status StageStatus) {
	for _, obs := range o {
		obs.OnStageChanged(stage, status)
	}
}

func (o observers) OnLogLine(stage Stage, text string) {
	for _, obs := range o {
		obs.OnLogLine(stage, text)
	}
}
