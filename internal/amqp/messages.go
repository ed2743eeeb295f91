package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// AllocationConfirmedMessage announces that a household confirmed a new
// allocation version. Consumers load the allocation itself from storage.
type AllocationConfirmedMessage struct {
	HouseholdID string    `json:"household_id"`
	Version     int64     `json:"version"`
	Outcome     string    `json:"outcome"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewAllocationConfirmedMessage(householdID string, version int64, outcome string) *AllocationConfirmedMessage {
	return &AllocationConfirmedMessage{
		HouseholdID: householdID,
		Version:     version,
		Outcome:     outcome,
		Timestamp:   time.Now(),
	}
}

func (m *AllocationConfirmedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AllocationConfirmedMessageFromJSON decodes and checks a message body.
func AllocationConfirmedMessageFromJSON(data []byte) (*AllocationConfirmedMessage, error) {
	var msg AllocationConfirmedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.HouseholdID == "" || msg.Version < 1 {
		return nil, errors.New("message needs household_id and a positive version")
	}
	return &msg, nil
}
