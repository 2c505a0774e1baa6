package result

import (
	"sort"
	"time"
)

// Countrates holds the count rate of each of the eight detectors.
// A nil entry means the detector reported nothing.
type Countrates struct {
	D1 *uint64 `json:"d1" validate:"omitempty,max=9223372036854775807"`
	D2 *uint64 `json:"d2" validate:"omitempty,max=9223372036854775807"`
	D3 *uint64 `json:"d3" validate:"omitempty,max=9223372036854775807"`
	D4 *uint64 `json:"d4" validate:"omitempty,max=9223372036854775807"`
	D5 *uint64 `json:"d5" validate:"omitempty,max=9223372036854775807"`
	D6 *uint64 `json:"d6" validate:"omitempty,max=9223372036854775807"`
	D7 *uint64 `json:"d7" validate:"omitempty,max=9223372036854775807"`
	D8 *uint64 `json:"d8" validate:"omitempty,max=9223372036854775807"`
}

// Detector is one named countrate entry.
type Detector struct {
	Name string
	Rate *uint64
}

// Detectors returns d1..d8 in order.
func (c *Countrates) Detectors() []Detector {
	return []Detector{
		{"d1", c.D1}, {"d2", c.D2}, {"d3", c.D3}, {"d4", c.D4},
		{"d5", c.D5}, {"d6", c.D6}, {"d7", c.D7}, {"d8", c.D8},
	}
}

// Coincidences maps a coincidence-pair label (e.g. "d1d5") to its count.
type Coincidences map[string]uint64

// Labels returns the labels in sorted order.
func (c Coincidences) Labels() []string {
	labels := make([]string, 0, len(c))
	for l := range c {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// ExperimentData is the measured data of one result.
type ExperimentData struct {
	CountratePerDetector     Countrates   `json:"countratePerDetector"`
	EncodedQubitMeasurements Coincidences `json:"encodedQubitMeasurements" validate:"max=256,dive,keys,min=1,max=64,endkeys,max=9223372036854775807"`
}

// ExperimentResult is one recorded run outcome.
type ExperimentResult struct {
	ID                int64          `json:"id"`
	ExperimentID      *string        `json:"experiment"`
	StartTime         time.Time      `json:"startTime"`
	TotalCounts       uint64         `json:"totalCounts" validate:"max=9223372036854775807"`
	NumberOfDetectors int            `json:"numberOfDetectors" validate:"min=1,max=8"`
	SinglePhotonRate  float64        `json:"singlePhotonRate" validate:"gt=-1000000,lt=1000000,decimals=2"`
	TotalTime         uint64         `json:"totalTime" validate:"max=9223372036854775807"`
	ExperimentData    ExperimentData `json:"experimentData"`
}

// CreateInput is the ingestion payload. StartTime is stamped by the server.
type CreateInput struct {
	Experiment        *string         `json:"experiment"`
	TotalCounts       uint64          `json:"totalCounts"`
	NumberOfDetectors int             `json:"numberOfDetectors"`
	SinglePhotonRate  float64         `json:"singlePhotonRate"`
	TotalTime         uint64          `json:"totalTime"`
	ExperimentData    *ExperimentData `json:"experimentData"`
}

// ListFilter narrows a result listing.
type ListFilter struct {
	ExperimentID string
	Limit        int
	Offset       int
}
