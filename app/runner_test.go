package app

import (
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shield-xrpfinance/shield-bridge/models"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func init() {
	log.SetOutput(io.Discard)
}

// MockRunner is a mock implementation of the Runner interface for testing purposes.
type MockRunner struct {
	runs int
}

func (m *MockRunner) Run() {
	m.runs += 1
}

func (m *MockRunner) Status() models.RunnerStatus {
	return models.RunnerStatus{
		XrplLedger:       strconv.Itoa(m.runs),
		FlareBlockNumber: "456",
	}
}

func TestRunnerService(t *testing.T) {
	// Create a mock Runner and set the interval to a short duration for testing.
	mockRunner := &MockRunner{}
	interval := 100 * time.Millisecond
	wg := &sync.WaitGroup{}
	service := NewRunnerService("TestService", mockRunner, wg, interval)
	wg.Add(1)

	// Run the service asynchronously in a goroutine.
	go service.Start()

	// Wait for a short duration to allow the service to run.
	time.Sleep(600 * time.Millisecond)

	// Stop the service.
	service.Stop()

	// Wait for the service to stop.
	wg.Wait()

	// Check if the health status has been updated correctly.
	health := service.Health()
	assert.True(t, health.Healthy)
	assert.Equal(t, "TestService", health.Name)
	runs, err := strconv.Atoi(health.XrplLedger)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, runs, 5)
	assert.Equal(t, "456", health.FlareBlockNumber)
}

func TestNewRunnerServiceInvalidParameters(t *testing.T) {
	// Test NewRunnerService with invalid parameters.
	wg := &sync.WaitGroup{}
	service := NewRunnerService("", &MockRunner{}, wg, time.Second)
	assert.Nil(t, service)

	service = NewRunnerService("TestService", nil, wg, time.Second)
	assert.Nil(t, service)

	service = NewRunnerService("TestService", &MockRunner{}, nil, time.Second)
	assert.Nil(t, service)

	service = NewRunnerService("TestService", &MockRunner{}, wg, 0)
	assert.Nil(t, service)
}

func TestRunnerServiceStopWithoutStart(t *testing.T) {
	// Stopping a service that was never started must not hang or panic.
	wg := &sync.WaitGroup{}
	service := NewRunnerService("TestService", &MockRunner{}, wg, time.Second)
	service.Stop()
	service.Stop()
}
