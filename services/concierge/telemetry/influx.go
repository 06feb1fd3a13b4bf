// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// InfluxSink writes sealed session records to InfluxDB for cost and
// latency dashboards. Emit failures are the caller's to swallow; the
// sink itself does not retry.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSink connects to an InfluxDB instance.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

// Emit implements the Sink interface.
func (s *InfluxSink) Emit(ctx context.Context, record *datatypes.TelemetryRecord) error {
	point := influxdb2.NewPoint(
		"concierge_sessions",
		map[string]string{
			"tenant_id": record.TenantID,
		},
		map[string]interface{}{
			"prompt_tokens":     record.PromptTokens,
			"completion_tokens": record.CompletionTokens,
			"cost_usd":          record.CostUSD,
			"duration_ms":       record.DurationMs,
			"calls":             len(record.Calls),
		},
		record.SealedAt,
	)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write session point: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
