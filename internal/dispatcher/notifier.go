package dispatcher

import (
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"socialpub/internal/job"
	"socialpub/pkg/cloudevent"
)

// Callback event types.
const (
	EventJobProgress = "publish.job.progress"
	EventJobDone     = "publish.job.done"
)

// Notifier turns publish-job lifecycle changes into callback events and
// hands them to the dispatcher. Jobs without a callback are ignored, as are
// event types the callback did not subscribe to (an empty subscription list
// means all events).
type Notifier struct {
	d      Dispatcher
	source string
	logger *slog.Logger
}

// NewNotifier creates a notifier emitting events with the given source URI.
func NewNotifier(d Dispatcher, source string) *Notifier {
	return &Notifier{
		d:      d,
		source: source,
		logger: slog.With("component", "notifier"),
	}
}

// JobProgress emits a publish.job.progress event for one provider outcome.
func (n *Notifier) JobProgress(j *job.Job, out job.Outcome) {
	data := map[string]any{
		"jobId":    j.ID,
		"provider": out.Provider,
		"ok":       out.OK,
	}
	if out.Posted != nil {
		data["posted"] = *out.Posted
	}
	if out.Error != "" {
		data["error"] = out.Error
	}
	n.emit(j, EventJobProgress, data)
}

// JobDone emits a publish.job.done event with the terminal status and the
// full per-provider results.
func (n *Notifier) JobDone(j *job.Job) {
	n.emit(j, EventJobDone, map[string]any{
		"jobId":   j.ID,
		"status":  j.Status,
		"results": j.Outcomes,
	})
}

func (n *Notifier) emit(j *job.Job, eventType string, data map[string]any) {
	cb := j.Callback
	if cb == nil || cb.URL == "" {
		return
	}
	if len(cb.Events) > 0 && !slices.Contains(cb.Events, eventType) {
		return
	}

	event := &Event{
		Payload:     cloudevent.New(eventType, n.source, j.ID, uuid.NewString(), data),
		Destination: cb.URL,
		SigningKey:  cb.Key,
	}
	if err := n.d.Dispatch(event); err != nil {
		n.logger.Warn("Callback not queued", "jobId", j.ID, "type", eventType, "error", err)
	}
}
