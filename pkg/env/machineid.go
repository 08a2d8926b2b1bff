package env

import (
	"github.com/denisbrodbeck/machineid"
)

// MachineID retrieves the unique ID identifying the machine,
// hashed per application so it's safe to publish.
// It falls back to "bridge" when the machine has no ID.
func MachineID() string {
	id, err := machineid.ProtectedID("robotalks-bridge")
	if err != nil {
		return "bridge"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
