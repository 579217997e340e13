package memutils

// Validatable is used by the DebugValidate method to allow it to act upon
// all types with a Validate method
type Validatable interface {
	Validate() error
}

const (
	// CreatedFillPattern is written across a payload when it is handed out, if the
	// debug_mem_utils build tag is present
	CreatedFillPattern uint8 = 0xDC
	// DestroyedFillPattern is written across a payload when it is released or reclaimed, if the
	// debug_mem_utils build tag is present
	DestroyedFillPattern uint8 = 0xEF
)
