package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/cdl-core/internal/result"
)

// Measurement names.
const (
	MeasurementCountrates   = "countrates"
	MeasurementCoincidences = "coincidences"
)

// RecordResult implements result.Telemetry. The write is non-blocking and a
// no-op while disconnected.
func (c *Client) RecordResult(experimentID string, r *result.ExperimentResult) {
	if !c.IsConnected() {
		return
	}
	for _, p := range ResultPoints(experimentID, r) {
		c.writeAPI.WritePoint(p)
	}
}

// ResultPoints converts a result into countrate and coincidence points.
// Detectors that reported nothing produce no point.
func ResultPoints(experimentID string, r *result.ExperimentResult) []*write.Point {
	if r == nil {
		return nil
	}

	data := r.ExperimentData
	points := make([]*write.Point, 0, 8+len(data.EncodedQubitMeasurements))

	for _, d := range data.CountratePerDetector.Detectors() {
		if d.Rate == nil {
			continue
		}
		points = append(points, write.NewPoint(
			MeasurementCountrates,
			map[string]string{"experiment_id": experimentID, "detector": d.Name},
			map[string]interface{}{"rate": int64(*d.Rate)}, // #nosec G115 -- validated <= MaxInt64
			r.StartTime,
		))
	}

	for _, pair := range data.EncodedQubitMeasurements.Labels() {
		points = append(points, write.NewPoint(
			MeasurementCoincidences,
			map[string]string{"experiment_id": experimentID, "pair": pair},
			map[string]interface{}{"count": int64(data.EncodedQubitMeasurements[pair])}, // #nosec G115 -- validated <= MaxInt64
			r.StartTime,
		))
	}

	return points
}
