// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package logger provides structured JSON logging with per-organization
// attribution. Every entry carries the emitting component, the organization
// the work was done for, and the request id so log lines from concurrent
// completions can be correlated.
package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging with per-organization attribution.
type Logger struct {
	Component string
	Host      string
}

// LogEntry is one emitted log line.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Component string                 `json:"component"`
	Host      string                 `json:"host"`
	OrgID     string                 `json:"org_id"`
	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component.
func New(component string) *Logger {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &Logger{
		Component: component,
		Host:      host,
	}
}

// Log creates a structured log entry and writes it to stdout
func (l *Logger) Log(level LogLevel, orgID, requestID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		Host:      l.Host,
		OrgID:     orgID,
		RequestID: requestID,
		Message:   message,
		Fields:    fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(orgID, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, orgID, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(orgID, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, orgID, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(orgID, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, orgID, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(orgID, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, orgID, requestID, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(orgID, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(orgID, requestID, message, fields)
}

// ErrorWithCode logs an error with status code
func (l *Logger) ErrorWithCode(orgID, requestID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(orgID, requestID, message, fields)
}
