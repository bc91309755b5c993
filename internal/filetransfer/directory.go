package filetransfer

import (
	"strings"

	"github.com/srg/blxfer/internal/device"
)

// Role names one characteristic the transfer script needs
type Role string

const (
	RoleService Role = "service"
	RoleCommand Role = "command"
	RoleData    Role = "data"
	RoleSize    Role = "size"
	RoleStatus  Role = "status"
)

// Roles binds every role to a characteristic of one connected peripheral.
// A Roles value is always fully populated.
type Roles struct {
	Service device.Service
	Command device.Characteristic
	Data    device.Characteristic
	Size    device.Characteristic
	Status  device.Characteristic
}

// UnresolvedError lists every role that could not be resolved
type UnresolvedError struct {
	Missing []Role
}

func (e *UnresolvedError) Error() string {
	names := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		names[i] = string(r)
	}
	return "file transfer service unresolved, missing: " + strings.Join(names, ", ")
}

// ResolveRoles finds the file-transfer service among the peripheral's discovered
// services and binds its characteristics. Resolution is all or nothing: when the
// service or any characteristic is absent the result is an *UnresolvedError.
func ResolveRoles(p device.Peripheral) (*Roles, error) {
	svc, err := device.FindService(p.Services(), ServiceUUID)
	if err != nil {
		return nil, &UnresolvedError{Missing: []Role{RoleService, RoleCommand, RoleData, RoleSize, RoleStatus}}
	}

	roles := &Roles{Service: svc}
	var missing []Role
	for _, binding := range []struct {
		role Role
		uuid string
		dst  *device.Characteristic
	}{
		{RoleCommand, CommandUUID, &roles.Command},
		{RoleData, DataUUID, &roles.Data},
		{RoleSize, SizeUUID, &roles.Size},
		{RoleStatus, StatusUUID, &roles.Status},
	} {
		c, err := device.FindCharacteristic(svc, binding.uuid)
		if err != nil {
			missing = append(missing, binding.role)
			continue
		}
		*binding.dst = c
	}

	if len(missing) > 0 {
		return nil, &UnresolvedError{Missing: missing}
	}
	return roles, nil
}
