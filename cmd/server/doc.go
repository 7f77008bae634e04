// Fieldsense - Farm Telemetry Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsense

/*
Package main is the entry point for the Fieldsense server.

Fieldsense ingests farm sensor telemetry over HTTP and MQTT, stores it in
DuckDB, raises threshold alerts and turns each node's recent history into
irrigation, fertilization and crop-health recommendations.

# Startup Order

 1. Configuration: defaults, config.yaml, .env and environment (koanf v2)
 2. Logging: zerolog with optional rotated file output
 3. Database: DuckDB schema and migrations
 4. Model store: BadgerDB bundle store, restoring the newest model snapshot
 5. Engines: decision engine, detection engine and the per-node dispatcher
 6. Event bus: watermill over gochannel or NATS JetStream
 7. Optional outputs: ClickHouse archive, Kafka notifications, audit trail
 8. Supervisor tree: data, messaging and API layers

# Supervisor Layers

	data-layer       model store GC, ClickHouse archive, audit writer
	messaging-layer  event bus router, dispatcher, Kafka notifier, MQTT ingester
	api-layer        HTTP server, WebSocket hub, response cache, model scheduler

# Signal Handling

SIGINT and SIGTERM cancel the root context. Every service gets
server.shutdown_timeout to drain before the database and stores close.

# Example

	DUCKDB_PATH=/data/fieldsense.duckdb \
	MQTT_ENABLED=true \
	MQTT_BROKER=tcp://mosquitto:1883 \
	./fieldsense
*/
package main
