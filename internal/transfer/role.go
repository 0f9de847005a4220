package transfer

import (
	"errors"
	"fmt"

	"github.com/gogpu/agpu/gpucore"
)

// Transfer errors.
var (
	// ErrListState is returned when a List operation is called in the wrong state.
	ErrListState = errors.New("transfer: list not in the required state")

	// ErrNoStaging is returned for staging copies on the Setup role.
	ErrNoStaging = errors.New("transfer: role has no staging buffer")

	// ErrStagingTooSmall is returned when a copy exceeds the ensured capacity.
	ErrStagingTooSmall = errors.New("transfer: copy exceeds staging capacity")

	// ErrClosed is returned after the coordinator has been closed.
	ErrClosed = errors.New("transfer: coordinator closed")
)

// DefaultInitialCapacity is the smallest staging buffer allocated (16 MiB,
// one 2048x2048 RGBA8 image).
const DefaultInitialCapacity = 2048 * 2048 * 4

// Role is the purpose of a transfer List.
type Role uint8

// Transfer roles.
const (
	// RoleSetup records state transitions of new resources. It has no staging.
	RoleSetup Role = iota

	// RoleUpload copies host data into resources.
	RoleUpload

	// RoleReadback copies resource data back to the host.
	RoleReadback
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleSetup:
		return "setup"
	case RoleUpload:
		return "upload"
	case RoleReadback:
		return "readback"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// stagingHeap returns the heap staging memory of the role lives in.
func (r Role) stagingHeap() (gpucore.HeapKind, gpucore.BufferUsage, bool) {
	switch r {
	case RoleUpload:
		return gpucore.HeapHostUpload, gpucore.BufferUsageCopySource, true
	case RoleReadback:
		return gpucore.HeapHostReadback, gpucore.BufferUsageCopyDestination, true
	default:
		return 0, 0, false
	}
}
