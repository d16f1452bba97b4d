package value

import "github.com/derp-lang/derp/internal/invariant"

// Handle is a smart, refcounted binding to a Value (spec component 3,
// "Ref"). Binding increments the Value's external-ref count; destroying
// or rebinding decrements it.
type Handle struct {
	v *Value
}

// NullHandle returns a handle bound to nothing.
func NullHandle() *Handle { return &Handle{} }

// Bind creates a new Handle to v, incrementing its external-ref count.
// v may be nil, producing a null handle.
func Bind(v *Value) *Handle {
	if v != nil {
		v.externalRefs++
	}
	return &Handle{v: v}
}

// Value returns the Value this handle points to, or nil if null.
func (h *Handle) Value() *Value {
	if h == nil {
		return nil
	}
	return h.v
}

// IsNull reports whether the handle points to nothing.
func (h *Handle) IsNull() bool {
	return h == nil || h.v == nil
}

// Clone copy-constructs a new Handle to the same Value, bumping its
// external-ref count once more.
func (h *Handle) Clone() *Handle {
	return Bind(h.Value())
}

// Reassign rebinds the handle to a different Value: decrements the
// old Value (if any), increments the new one, in that order (matches
// spec.md §4.3's `reassign`; the VM's `:=` operator calls this on a
// Context slot).
func (h *Handle) Reassign(newVal *Value) {
	old := h.v
	if old != nil {
		releaseValue(old)
	}
	if newVal != nil {
		newVal.externalRefs++
	}
	h.v = newVal
}

// Destroy decrements the pointed-to Value's external-ref count. Per
// spec.md §4.3: if the post-decrement count is 1 and the Value is no
// longer registered with any VM, the Value's payload is torn down —
// this lets a VM unregister Values during shutdown and have stragglers
// clean themselves up when their last external Handle goes.
func (h *Handle) Destroy() {
	if h == nil || h.v == nil {
		return
	}
	releaseValue(h.v)
	h.v = nil
}

func releaseValue(v *Value) {
	v.externalRefs--
	invariant.Invariant(v.externalRefs >= 0, "Value external-ref count underflowed")
	if v.externalRefs == 1 && !v.registered {
		v.clearPayload()
	}
}
