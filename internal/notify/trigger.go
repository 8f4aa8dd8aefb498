package notify

import (
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

// fires reports whether a sink with trigger is notified about an event of eventType.
// previous is nil if no earlier run of the group is known.
func fires(trigger v1beta1.Trigger, eventType EventType, current v1beta1.RunStatus, previous *v1beta1.PipelineRunStatus) bool {
	switch trigger {
	case v1beta1.TriggerAlways:
		return true
	case v1beta1.TriggerChange:
		if previous == nil {
			return true
		}

		// on start a change means the group is still broken
		if eventType == EventStart {
			return previous.Status != v1beta1.RunStatusPassed
		}

		return previous.Status != current
	default:
		return false
	}
}

func triggerFor(config v1beta1.Notification, eventType EventType) v1beta1.Trigger {
	switch eventType {
	case EventStart:
		return config.OnStart
	case EventSuccess:
		return config.OnSuccess
	default:
		return config.OnFailure
	}
}
