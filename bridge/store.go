package bridge

import (
	"errors"
	"time"

	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/shield-xrpfinance/shield-bridge/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrBridgeNotFound = errors.New("bridge not found")

// Store is the narrow persistence surface the orchestrator and watchdog
// share: bridge records plus the generic key/value service state table used
// for watermarks.
type Store interface {
	InsertBridge(bridge *models.Bridge) error
	GetBridgeById(bridgeId string) (*models.Bridge, error)
	GetBridgeByPaymentReference(reference string) (*models.Bridge, error)
	UpdateBridge(bridgeId string, patch bson.M) error
	UpdateBridgeIfStatus(bridgeId string, statuses []string, patch bson.M) (bool, error)
	GetBridgesByStatus(statuses []string) ([]models.Bridge, error)
	GetServiceState(key string) (string, error)
	SetServiceState(key string, value string) error
}

type mongoStore struct{}

func NewStore() Store {
	return &mongoStore{}
}

func (s *mongoStore) InsertBridge(bridge *models.Bridge) error {
	return app.DB.InsertOne(models.CollectionBridges, bridge)
}

func (s *mongoStore) GetBridgeById(bridgeId string) (*models.Bridge, error) {
	var bridge models.Bridge
	err := app.DB.FindOne(models.CollectionBridges, bson.M{"bridge_id": bridgeId}, &bridge)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrBridgeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bridge, nil
}

func (s *mongoStore) GetBridgeByPaymentReference(reference string) (*models.Bridge, error) {
	var bridge models.Bridge
	err := app.DB.FindOne(models.CollectionBridges, bson.M{"payment_reference": reference}, &bridge)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrBridgeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bridge, nil
}

// UpdateBridge applies a $set patch and stamps updated_at.
func (s *mongoStore) UpdateBridge(bridgeId string, patch bson.M) error {
	patch["updated_at"] = time.Now()
	return app.DB.UpdateOne(models.CollectionBridges,
		bson.M{"bridge_id": bridgeId}, bson.M{"$set": patch})
}

// UpdateBridgeIfStatus applies a $set patch only while the bridge still sits
// at one of the given statuses, reporting whether the write matched. Competing
// transitions race through mongo's single-document atomicity: exactly one
// caller observes a match.
func (s *mongoStore) UpdateBridgeIfStatus(bridgeId string, statuses []string, patch bson.M) (bool, error) {
	patch["updated_at"] = time.Now()
	return app.DB.UpdateOneMatched(models.CollectionBridges,
		bson.M{"bridge_id": bridgeId, "status": bson.M{"$in": statuses}},
		bson.M{"$set": patch})
}

func (s *mongoStore) GetBridgesByStatus(statuses []string) ([]models.Bridge, error) {
	var bridges []models.Bridge
	err := app.DB.FindMany(models.CollectionBridges,
		bson.M{"status": bson.M{"$in": statuses}}, &bridges)
	if err != nil {
		return nil, err
	}
	return bridges, nil
}

// GetServiceState returns the stored value for key, or empty string when the
// key was never written.
func (s *mongoStore) GetServiceState(key string) (string, error) {
	var state models.ServiceState
	err := app.DB.FindOne(models.CollectionServiceStates, bson.M{"key": key}, &state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return state.Value, nil
}

func (s *mongoStore) SetServiceState(key string, value string) error {
	return app.DB.UpsertOne(models.CollectionServiceStates,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"value": value, "updated_at": time.Now()}})
}
