package tensor

// Backend defines the contract a compute backend offers to the zoo.
//
// Segmentation checkpoints are only built, loaded and serialized, never
// evaluated, so a backend only decides where tensor memory is allocated.
//
// Implementations:
//   - CPU: host memory (internal/backend/cpu)
//   - Mock: testing
type Backend interface {
	// Name returns a short identifier such as "cpu".
	Name() string

	// Device returns the device tensors are allocated on.
	Device() Device
}
