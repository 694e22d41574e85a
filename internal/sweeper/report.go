package sweeper

// EventKind identifies what happened to a path during a sweep.
type EventKind string

const (
	EventWouldDelete  EventKind = "would_delete"
	EventDeleted      EventKind = "deleted"
	EventDeleteFailed EventKind = "delete_failed"
	EventExcluded     EventKind = "excluded"
	EventDirRemoved   EventKind = "dir_removed"
	EventDirFailed    EventKind = "dir_failed"
)

type Event struct {
	Kind EventKind
	Path string
	Size int64
	Err  error
}

// Reporter receives events as the sweep progresses. Implementations must be
// safe for concurrent use when the sweep runs with Concurrency > 1.
type Reporter interface {
	Report(Event)
}

type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// Excluder protects paths from deletion.
type Excluder interface {
	Match(path string) bool
}
