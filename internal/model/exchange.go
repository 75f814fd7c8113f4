// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"encoding/json"
	"time"

	"github.com/firoagni/ai-development-tutorials/internal/logging"
)

// Exchange records the outcome of one question asked within a session.
type Exchange struct {
	SessionID  string    `json:"session_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer,omitempty"`
	Error      string    `json:"error,omitempty"`
	Model      string    `json:"model"`
	ModelCalls int       `json:"model_calls"`
	ToolCalls  int       `json:"tool_calls"`
	Trimmed    int       `json:"trimmed"` // messages evicted before the request
	Usage      Usage     `json:"usage"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Duration   string    `json:"duration"`
}

// ExchangeStore persists exchanges for later inspection.
type ExchangeStore interface {
	SaveExchange(e *Exchange) error
	GetExchanges(sessionID string, limit int) ([]*Exchange, error)
	Close() error
}

// PersistAndLogExchange saves an exchange to the store (best-effort) and
// debug-logs it.
func PersistAndLogExchange(store ExchangeStore, e *Exchange, logger *logging.Logger) {
	if store != nil {
		if err := store.SaveExchange(e); err != nil {
			logger.Warnf("Failed to persist exchange for session %s: %v", e.SessionID, err)
		}
	}

	jsonData, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		logger.Warnf("Failed to marshal exchange for session %s: %v", e.SessionID, err)
	} else {
		logger.Debugf("Session %s exchange: %s", e.SessionID, string(jsonData))
	}
}
