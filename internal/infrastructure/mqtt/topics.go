package mqtt

import "fmt"

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "cdl"

// Topics builds CDL topic names under a prefix.
//
//	topics := mqtt.Topics{Prefix: "cdl"}
//	topics.ExperimentStatus("9a0c...")
//	// Returns: "cdl/experiments/9a0c.../status"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// ExperimentQueued is published when an experiment enters the queue.
func (t Topics) ExperimentQueued(experimentID string) string {
	return fmt.Sprintf("%s/experiments/%s/queued", t.prefix(), experimentID)
}

// ExperimentStatus is published on every status transition.
func (t Topics) ExperimentStatus(experimentID string) string {
	return fmt.Sprintf("%s/experiments/%s/status", t.prefix(), experimentID)
}

// ExperimentDeleted is published when an experiment is removed.
func (t Topics) ExperimentDeleted(experimentID string) string {
	return fmt.Sprintf("%s/experiments/%s/deleted", t.prefix(), experimentID)
}

// ResultRecorded is published when a result is ingested.
func (t Topics) ResultRecorded(resultID int64) string {
	return fmt.Sprintf("%s/results/%d/recorded", t.prefix(), resultID)
}

// AllExperiments matches every experiment topic. Handy for subscribers.
func (t Topics) AllExperiments() string {
	return t.prefix() + "/experiments/#"
}

// SystemStatus carries the retained online/offline marker of this service.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}
