//go:build test

package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	goble "github.com/srg/blxfer/internal/device/go-ble"
	"github.com/srg/blxfer/internal/testutils/mocks"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite provides a reusable test suite with a mocked go-ble client.
// It swaps goble.Dial for the duration of each test so production code paths
// (goble.Central, session, CLI commands) run against the configured profile.
//
// Custom device profile usage:
//
//	type SendSuite struct {
//	    testutils.MockBLEPeripheralSuite
//	}
//
//	func (s *SendSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService(filetransfer.ServiceUUID).
//	        WithCharacteristic(filetransfer.StatusUUID, "read", []byte{2})
//
//	    s.MockBLEPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	OriginalDial func(ctx context.Context, address string) (goble.GATTClient, error)
	TestTimeout  time.Duration

	PeripheralBuilder *PeripheralDeviceBuilder
	// Client is the mock handed out by the last Dial call
	Client *mocks.GATTClient
	// DialErr, when set, makes Dial fail
	DialErr error
}

// SetupSuite runs once before all tests in the suite
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second

	s.OriginalDial = goble.Dial
	s.T().Cleanup(func() {
		if s.OriginalDial != nil {
			goble.Dial = s.OriginalDial
		}
	})
}

// SetupTest installs the mocked Dial before each test
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder()
	}

	// the profile is read at dial time so tests may still adjust it after SetupTest
	goble.Dial = func(ctx context.Context, address string) (goble.GATTClient, error) {
		if s.DialErr != nil {
			return nil, s.DialErr
		}
		s.Client = s.PeripheralBuilder.WithAddress(address).BuildGATTClient()
		return s.Client, nil
	}
}

// TearDownTest restores Dial and resets the builder
func (s *MockBLEPeripheralSuite) TearDownTest() {
	if s.OriginalDial != nil {
		goble.Dial = s.OriginalDial
	}
	s.PeripheralBuilder = nil
	s.Client = nil
	s.DialErr = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}

// createDefaultPeripheralBuilder returns a profile with the Battery Service (180F)
// and Battery Level characteristic (2A19) set to 50%.
func createDefaultPeripheralBuilder() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().
		FromJSON(`
		{
			"services": [
				{
					"uuid": "180F",
					"characteristics": [
						{ "uuid": "2A19", "properties": "read,notify", "value": [50] }
					]
				}
			]
		}`)
}
