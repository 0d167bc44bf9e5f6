package driver

// Stage is the translation step a unit is in.
type Stage string

const (
	StageValidate Stage = "validate"
	StageAnalyze  Stage = "analyze"
	StageEmit     Stage = "emit"
	StageCache    Stage = "cache"
)

// Status describes how a unit is doing within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event is a progress update. Unit is empty for whole-translation events.
type Event struct {
	Unit   string
	Stage  Stage
	Status Status
}

// ProgressSink receives progress events. Analysis workers call OnEvent
// concurrently.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events to a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(ev Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- ev
}

type nopSink struct{}

func (nopSink) OnEvent(Event) {}
