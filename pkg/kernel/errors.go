package kernel

import "errors"

// Recoverable results of permission/placement negotiation. These mirror
// the emulated kernel's error taxonomy; the syscall dispatch layer is
// responsible for translating them into guest-visible result words.
var (
	ErrInvalidCombination  = errors.New("kernel: invalid combination")
	ErrWrongPermission     = errors.New("kernel: wrong permission")
	ErrInvalidAddress      = errors.New("kernel: invalid address")
	ErrInvalidAddressState = errors.New("kernel: invalid address state")
)

// mapResultLabel turns a Map outcome into a telemetry label.
func mapResultLabel(err error) string {
	switch err {
	case nil:
		return "ok"
	case ErrInvalidCombination:
		return "invalid_combination"
	case ErrWrongPermission:
		return "wrong_permission"
	case ErrInvalidAddress:
		return "invalid_address"
	case ErrInvalidAddressState:
		return "invalid_address_state"
	}
	return "internal"
}
