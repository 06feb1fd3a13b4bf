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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// ErrRecordNotFound is returned when no record exists for a session id.
var ErrRecordNotFound = errors.New("telemetry record not found")

const (
	telemetryKeyPrefix = "telemetry/"
	traceKeyPrefix     = "trace/"

	// recordTTL bounds local disk growth; sealed records older than
	// this are debugging material nobody reads anymore.
	recordTTL = 30 * 24 * time.Hour
)

// Store persists sealed telemetry records and session traces.
//
// Thread Safety: implementations must be safe for concurrent use.
type Store interface {
	PutRecord(record *datatypes.TelemetryRecord) error
	GetRecord(sessionID string) (*datatypes.TelemetryRecord, error)
	PutTrace(trace *datatypes.SessionTrace) error
	GetTrace(sessionID string) (*datatypes.SessionTrace, error)
	Close() error
}

// BadgerStore is an embedded BadgerDB store. Low-latency local
// persistence keeps the flush in the request path cheap; durable
// analytics go through the Influx sink instead.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens a persistent store at path. An empty path opens
// an in-memory database, which is what tests use.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create telemetry directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open telemetry store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// PutRecord stores a sealed record under its session id.
func (s *BadgerStore) PutRecord(record *datatypes.TelemetryRecord) error {
	return s.put(telemetryKeyPrefix+record.SessionID, record)
}

// GetRecord loads the sealed record for a session.
func (s *BadgerStore) GetRecord(sessionID string) (*datatypes.TelemetryRecord, error) {
	var record datatypes.TelemetryRecord
	if err := s.get(telemetryKeyPrefix+sessionID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// PutTrace stores a session trace under its session id.
func (s *BadgerStore) PutTrace(trace *datatypes.SessionTrace) error {
	return s.put(traceKeyPrefix+trace.SessionID, trace)
}

// GetTrace loads the trace for a session.
func (s *BadgerStore) GetTrace(sessionID string) (*datatypes.SessionTrace, error) {
	var trace datatypes.SessionTrace
	if err := s.get(traceKeyPrefix+sessionID, &trace); err != nil {
		return nil, err
	}
	return &trace, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) put(key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), payload).WithTTL(recordTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) get(key string, out any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	return nil
}
