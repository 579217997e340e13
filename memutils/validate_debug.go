//go:build debug_mem_utils

package memutils

// DebugFill is true when payloads are overwritten with CreatedFillPattern and
// DestroyedFillPattern as they change hands
const DebugFill bool = true

// DebugFillRegion writes pattern across the region. This method no-ops unless the
// debug_mem_utils build tag is present.
func DebugFillRegion(region Region, pattern uint8) {
	region.Fill(pattern)
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
	err := CheckPow2[T](value, name)
	if err != nil {
		panic(err)
	}
}
