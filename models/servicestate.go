package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CollectionServiceStates = "service_states"
)

// keys used in the service_states table
const (
	ServiceStateWatchdogLastCheckedBlock = "watchdog_last_checked_block"
)

// ServiceState is a generic persisted (key, value) watermark. The watchdog
// stores its last checked block here so restarts resume instead of
// re-scanning from scratch.
type ServiceState struct {
	Id        *primitive.ObjectID `bson:"_id,omitempty"`
	Key       string              `bson:"key"`
	Value     string              `bson:"value"`
	UpdatedAt time.Time           `bson:"updated_at"`
}
