package config

import "github.com/google/uuid"

func newDeviceID() string {
	return "device-" + uuid.NewString()
}
