package events

import "github.com/scalarorg/ibc-tracker/pkg/db/models"

const (
	EVENT_TRANSFER_INSERTED       = "Transfer.Inserted"
	EVENT_TRANSFER_STATUS_CHANGED = "Transfer.StatusChanged"
)

// EventEnvelope reports a write that changed what the store knows about a transfer.
// Previous is zero for inserts.
type EventEnvelope struct {
	Topic     string
	RecordID  string
	Previous  models.Status
	Current   models.Status
	Timestamp int64
}
