// Package mqtt publishes CDL Core lifecycle events to an MQTT broker.
//
// Queue workers and lab dashboards subscribe to these topics instead of
// polling the REST API:
//
//	cdl/experiments/{id}/queued      experiment accepted into the queue
//	cdl/experiments/{id}/status      status transition
//	cdl/experiments/{id}/deleted     experiment removed
//	cdl/results/{result_id}/recorded result ingested
//	cdl/system/status                retained online/offline marker (LWT)
//
// The prefix ("cdl") comes from mqtt.topic_prefix. Events are published with
// the configured QoS and are never retained.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sink := mqtt.NewEventSink(client, cfg.MQTT, logger)
//	publisher := events.FanOut{sink, hub}
//
// A failed publish is logged by the sink and never surfaces to the request
// that produced the event.
package mqtt
