package testutils

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
// Set LOTUS_TEST_LOGS=1 to see the log output.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	if os.Getenv("LOTUS_TEST_LOGS") == "" {
		logger.SetOutput(io.Discard)
	}
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// TempSettingsPath returns a settings file path inside a per-test temp dir.
func (h *TestHelper) TempSettingsPath() string {
	return filepath.Join(h.T.TempDir(), "lotus", "settings.json")
}

// WriteFile writes content to path, creating parent directories.
func (h *TestHelper) WriteFile(path, content string) {
	h.T.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.T.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.T.Fatalf("write %s: %v", path, err)
	}
}

func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

func CreateMockAdvertisementFromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	return NewAdvertisementBuilder().FromJSON(jsonStrFmt, args...)
}
