package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// Broad topics. Narrow topics are built with JobTopic and KindTopic.
const (
	TopicJobs     = "jobs"     // every job event
	TopicCron     = "cron"     // cron firings
	TopicFirehose = "firehose" // everything
)

// JobTopic carries the events of a single job.
func JobTopic(id int64) string { return "job:" + strconv.FormatInt(id, 10) }

// KindTopic carries the events of one queue, "kind:delivery" or
// "kind:trigger".
func KindTopic(kind string) string { return "kind:" + kind }

// ValidateTopic rejects topics no event will ever be published on.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicJobs, TopicCron, TopicFirehose:
		return nil
	}
	prefix, rest, ok := strings.Cut(topic, ":")
	if !ok || rest == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	switch prefix {
	case "job":
		if id, err := strconv.ParseInt(rest, 10, 64); err != nil || id <= 0 {
			return fmt.Errorf("stream: job topic %q needs a positive job id", topic)
		}
	case "kind":
	default:
		return fmt.Errorf("stream: unknown topic entity %q", prefix)
	}
	return nil
}

// jobTopics lists the topics a job event is published on, narrowest first.
// Cancellation only knows the ID, so kind may be empty.
func jobTopics(id int64, kind string) []string {
	topics := []string{JobTopic(id)}
	if kind != "" {
		topics = append(topics, KindTopic(kind))
	}
	return append(topics, TopicJobs, TopicFirehose)
}
