// Package influxdb mirrors recorded experiment results into InfluxDB.
//
// Each result produces one point per reporting detector and one point per
// coincidence pair, all stamped with the result's start time:
//
//	countrates,experiment_id=<uuid>,detector=d1 rate=1520i
//	coincidences,experiment_id=<uuid>,pair=d1d5 count=42i
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	results := result.NewService(result.Deps{Telemetry: client, ...})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes go through the
// non-blocking WriteAPI and are batched; asynchronous write failures are
// delivered to the SetOnError callback.
package influxdb
