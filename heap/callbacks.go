package heap

// GrowHeapCallback is called after the heap has been extended by size bytes starting at start
type GrowHeapCallback func(
	heap *Heap,
	start uintptr,
	size int,
	userData interface{},
)

// GrowDeniedCallback is called when the heap could not be extended by size bytes
type GrowDeniedCallback func(
	heap *Heap,
	size int,
	userData interface{},
)

type GrowCallbackOptions struct {
	Grow     GrowHeapCallback
	Denied   GrowDeniedCallback
	UserData interface{}
}

type growCallbacks struct {
	Callbacks *GrowCallbackOptions
	Heap      *Heap
}

func (c *growCallbacks) Grow(start uintptr, size int) {
	c.Heap.counters.Extensions++
	c.Heap.counters.ExtendedBytes += size

	if c.Callbacks != nil && c.Callbacks.Grow != nil {
		c.Callbacks.Grow(c.Heap, start, size, c.Callbacks.UserData)
	}
}

func (c *growCallbacks) Denied(size int) {
	c.Heap.counters.ExtensionsDenied++

	if c.Callbacks != nil && c.Callbacks.Denied != nil {
		c.Callbacks.Denied(c.Heap, size, c.Callbacks.UserData)
	}
}
