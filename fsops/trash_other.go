//go:build !linux && !darwin

package fsops

// DefaultTrash reports every trash request as unsupported.
func DefaultTrash() (Trash, error) {
	return unsupportedTrash{}, nil
}
