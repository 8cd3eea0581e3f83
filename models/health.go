package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CollectionHealthChecks = "healthchecks"
)

type Health struct {
	Id             *primitive.ObjectID `bson:"_id,omitempty"`
	InstanceId     string              `bson:"instance_id"`
	Hostname       string              `bson:"hostname"`
	FlareAddress   string              `bson:"flare_address"`
	ServiceHealths []ServiceHealth     `bson:"service_healths"`
	CreatedAt      time.Time           `bson:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at"`
}
