// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"fmt"
	"math"
	"sort"
)

// ParamType is the declared type of a strategy parameter.
type ParamType string

const (
	TypeString     ParamType = "string"
	TypeNumber     ParamType = "number"
	TypeInt        ParamType = "integer"
	TypeBool       ParamType = "boolean"
	TypeStringList ParamType = "array"
)

// ParamDef describes a single strategy parameter.
type ParamDef struct {
	// Type is the expected value type.
	Type ParamType `json:"type"`

	// Description is surfaced to the planning model.
	Description string `json:"description"`

	// Required marks the parameter as mandatory.
	Required bool `json:"required"`

	// Enum restricts string values when non-empty.
	Enum []string `json:"enum,omitempty"`
}

// ParamSchema is the parameter contract for one strategy. It is the
// JSON-schema-like shape handed to the planning model and enforced
// before dispatch.
type ParamSchema map[string]ParamDef

// JSONSchema renders the schema as a JSON-schema object in the shape
// function-calling providers expect. The required list is sorted so the
// rendered schema is byte-stable across calls.
func (s ParamSchema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s))
	var required []string
	for name, def := range s {
		prop := map[string]any{
			"type":        string(def.Type),
			"description": def.Description,
		}
		if def.Type == TypeStringList {
			prop["items"] = map[string]any{"type": "string"}
		}
		if len(def.Enum) > 0 {
			prop["enum"] = def.Enum
		}
		properties[name] = prop
		if def.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ValidationError reports a single parameter violation.
type ValidationError struct {
	Parameter string
	Message   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Parameter, e.Message)
}

// Validate checks raw planner-proposed parameters against the schema.
//
// Unknown parameters are rejected: the planner hallucinating argument
// names is exactly the failure mode this guard exists for. JSON numbers
// arrive as float64, so integer parameters accept whole-valued floats.
func (s ParamSchema) Validate(params map[string]any) error {
	for name, def := range s {
		if !def.Required {
			continue
		}
		if _, ok := params[name]; !ok {
			return &ValidationError{Parameter: name, Message: "required parameter missing"}
		}
	}

	for name, value := range params {
		def, ok := s[name]
		if !ok {
			return &ValidationError{Parameter: name, Message: "unknown parameter"}
		}
		if err := validateValue(name, value, def); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(name string, value any, def ParamDef) error {
	if value == nil {
		if def.Required {
			return &ValidationError{Parameter: name, Message: "required parameter is nil"}
		}
		return nil
	}

	switch def.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return &ValidationError{Parameter: name, Message: "expected string"}
		}
		if len(def.Enum) > 0 && !contains(def.Enum, str) {
			return &ValidationError{Parameter: name, Message: fmt.Sprintf("value %q not in %v", str, def.Enum)}
		}
	case TypeNumber:
		if !isNumber(value) {
			return &ValidationError{Parameter: name, Message: "expected number"}
		}
	case TypeInt:
		f, ok := asFloat(value)
		if !ok || f != math.Trunc(f) {
			return &ValidationError{Parameter: name, Message: "expected integer"}
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return &ValidationError{Parameter: name, Message: "expected boolean"}
		}
	case TypeStringList:
		items, ok := value.([]any)
		if !ok {
			return &ValidationError{Parameter: name, Message: "expected array of strings"}
		}
		for _, item := range items {
			if _, ok := item.(string); !ok {
				return &ValidationError{Parameter: name, Message: "expected array of strings"}
			}
		}
	default:
		return &ValidationError{Parameter: name, Message: fmt.Sprintf("schema declares unknown type %q", def.Type)}
	}
	return nil
}

func isNumber(value any) bool {
	_, ok := asFloat(value)
	return ok
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
