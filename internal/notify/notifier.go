package notify

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/raffis/matrun/internal/pipeline"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

type option func(*Notifier)

// WithSink registers a sink with the triggers of notification.
func WithSink(notification v1beta1.Notification, sink Sink) option {
	return func(n *Notifier) {
		notification.SetDefaults()
		n.sinks = append(n.sinks, registeredSink{
			notification: notification,
			sink:         sink,
		})
	}
}

func WithStore(store StatusStore) option {
	return func(n *Notifier) {
		n.store = store
	}
}

func WithLogger(logger logr.Logger) option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

type registeredSink struct {
	notification v1beta1.Notification
	sink         Sink
}

// Notifier dispatches run events to its sinks according to their triggers.
// Delivery errors are logged and never returned.
type Notifier struct {
	sinks  []registeredSink
	store  StatusStore
	logger logr.Logger

	mu       sync.Mutex
	loaded   map[string]bool
	previous map[string]*v1beta1.PipelineRunStatus
}

func New(opts ...option) *Notifier {
	n := &Notifier{
		logger:   logr.Discard(),
		loaded:   make(map[string]bool),
		previous: make(map[string]*v1beta1.PipelineRunStatus),
	}

	for _, o := range opts {
		o(n)
	}

	return n
}

// FromSpec builds a notifier with a sink for every notification entry.
func FromSpec(notifications []v1beta1.Notification, cfg Config, opts ...option) (*Notifier, error) {
	for _, notification := range notifications {
		notification.SetDefaults()
		sink, err := NewSink(notification, cfg)
		if err != nil {
			return nil, err
		}

		opts = append(opts, WithSink(notification, sink))
	}

	return New(opts...), nil
}

// Start dispatches the start event.
func (n *Notifier) Start(ctx context.Context, run pipeline.PipelineResult) {
	previous := n.previousRun(ctx, GroupKey(run.Name, run.Branch))
	n.dispatch(ctx, newEvent(EventStart, run, previous), "", previous)
}

// Finish dispatches the success or failure event and records the result as the last run of its group.
func (n *Notifier) Finish(ctx context.Context, result pipeline.PipelineResult) {
	key := GroupKey(result.Name, result.Branch)
	previous := n.previousRun(ctx, key)

	eventType := EventFailure
	if result.Passed() {
		eventType = EventSuccess
	}

	event := newEvent(eventType, result, previous)
	n.dispatch(ctx, event, event.Status, previous)

	if n.store == nil {
		return
	}

	err := n.store.Put(ctx, key, v1beta1.PipelineRunStatus{
		RunID:      result.RunID,
		Pipeline:   result.Name,
		Branch:     result.Branch,
		Status:     event.Status,
		Jobs:       len(result.Jobs),
		FinishedAt: metav1.NewTime(result.EndedAt),
	})

	if err != nil {
		n.logger.Error(err, "failed to store run status", "key", key)
	}
}

// previousRun returns the status recorded before this process ran the group.
// The lookup is cached so Finish compares against the same run as Start.
func (n *Notifier) previousRun(ctx context.Context, key string) *v1beta1.PipelineRunStatus {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.loaded[key] || n.store == nil {
		return n.previous[key]
	}

	previous, err := n.store.Get(ctx, key)
	if err != nil {
		n.logger.Error(err, "failed to read previous run status, assuming none", "key", key)
	}

	n.loaded[key] = true
	n.previous[key] = previous
	return previous
}

func (n *Notifier) dispatch(ctx context.Context, event Event, current v1beta1.RunStatus, previous *v1beta1.PipelineRunStatus) {
	var wg sync.WaitGroup
	for _, s := range n.sinks {
		trigger := triggerFor(s.notification, event.Type)
		logger := n.logger.WithValues("notification", s.notification.Name, "event", event.Type, "trigger", trigger)

		if !fires(trigger, event.Type, current, previous) {
			logger.V(1).Info("notification not triggered")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := s.sink.Send(ctx, event); err != nil {
				logger.Error(err, "notification failed")
				return
			}

			logger.V(1).Info("notification sent")
		}()
	}

	wg.Wait()
}
