package service

import (
	"encoding/json"

	"github.com/kjstillabower/weather-sync-service/internal/models"
)

// Status discriminates the SyncState variants.
type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// UnknownErrorMessage is published when a failure carries no text.
const UnknownErrorMessage = "Unknown error"

// SyncState is the weather state shown to consumers: Loading, Success with a
// snapshot, or Error with a message. Build values with Loading, Success and Failure.
type SyncState struct {
	Status   Status
	Snapshot *models.WeatherSnapshot
	Message  string
}

func Loading() SyncState {
	return SyncState{Status: StatusLoading}
}

// Success copies snapshot so later mutation by the caller is not observed.
func Success(snapshot models.WeatherSnapshot) SyncState {
	return SyncState{Status: StatusSuccess, Snapshot: &snapshot}
}

// Failure builds the Error variant. An empty message becomes UnknownErrorMessage.
func Failure(message string) SyncState {
	if message == "" {
		message = UnknownErrorMessage
	}
	return SyncState{Status: StatusError, Message: message}
}

// Clone returns s with its own copy of the snapshot.
func (s SyncState) Clone() SyncState {
	if s.Snapshot != nil {
		snapshot := *s.Snapshot
		s.Snapshot = &snapshot
	}
	return s
}

func (s SyncState) IsLoading() bool { return s.Status == StatusLoading }
func (s SyncState) IsSuccess() bool { return s.Status == StatusSuccess }
func (s SyncState) IsError() bool   { return s.Status == StatusError }

// Equal reports whether s and o are the same variant with equal contents.
func (s SyncState) Equal(o SyncState) bool {
	if s.Status != o.Status || s.Message != o.Message {
		return false
	}
	if s.Snapshot == nil || o.Snapshot == nil {
		return s.Snapshot == o.Snapshot
	}
	return *s.Snapshot == *o.Snapshot
}

type syncStateJSON struct {
	Status  Status                  `json:"status"`
	Data    *models.WeatherSnapshot `json:"data,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// MarshalJSON encodes the state as {"status": ..., "data": ...} or {"status": "error", "message": ...}.
func (s SyncState) MarshalJSON() ([]byte, error) {
	return json.Marshal(syncStateJSON{Status: s.Status, Data: s.Snapshot, Message: s.Message})
}

func (s *SyncState) UnmarshalJSON(b []byte) error {
	var raw syncStateJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = SyncState{Status: raw.Status, Snapshot: raw.Data, Message: raw.Message}
	return nil
}
