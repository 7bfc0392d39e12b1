package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DeviceIDFile is the file under the state directory holding the device ID.
const DeviceIDFile = "device_id"

// LoadDeviceID returns the persistent device ID stored in stateDir,
// generating and saving one on first use.
func LoadDeviceID(stateDir string) (string, error) {
	path := filepath.Join(stateDir, DeviceIDFile)
	b, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(b))
		if _, perr := uuid.Parse(id); perr != nil {
			return "", fmt.Errorf("invalid device id in %s: %w", path, perr)
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	return id, nil
}

// DefaultUserAgent derives a user agent from the version and device ID.
func DefaultUserAgent(version, deviceID string) string {
	if deviceID == "" {
		return "mmsgate/" + version
	}
	return fmt.Sprintf("mmsgate/%s (%s)", version, deviceID)
}
