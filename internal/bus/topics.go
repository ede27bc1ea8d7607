package bus

import "fmt"

// Topic patterns for run lifecycle events. Each project gets its own event
// topic so clients can follow a single run or everything at once.

func TopicProjectEvents(projectID string) string {
	return fmt.Sprintf("events.project.%s", projectID)
}

const (
	TopicEventsAll     = "events.>"
	TopicEventsProject = "events.project.*"
)
