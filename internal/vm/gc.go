package vm

import "github.com/derp-lang/derp/internal/value"

// GarbageCollect runs one mark-and-sweep pass (spec.md §4.9). Ordinary
// refcounting can't break table cycles, so the collector temporarily
// hides each table's internal key/value references, marks everything
// still reachable from a root, restores the hidden references, then
// tears down whatever wasn't marked.
//
// Literal values in this implementation are unboxed (ast.Node carries
// a raw int64/float64/string, not a *Value — see ast.Node's doc), so
// unlike the source design a function's ExecNode tree never itself
// holds extra GC roots beyond the function Value; marking a function
// reachable is enough; its body needs no separate tree walk.
func (m *VM) GarbageCollect() {
	for _, v := range m.objects {
		if v.Kind() != value.KindTable {
			continue
		}
		for _, kh := range v.Table().Keys() {
			kh.Value().AdjustExternalRefsForGC(-1)
		}
		for _, vh := range v.Table().Values() {
			vh.Value().AdjustExternalRefsForGC(-1)
		}
	}

	m.gcEpoch++
	for _, v := range m.objects {
		isRoot := v.ExternalRefs() > 1 || (v.Kind() == value.KindFunction && v.FunctionExecuting())
		if isRoot {
			m.markReachable(v)
		}
	}

	for _, v := range m.objects {
		if v.Kind() != value.KindTable {
			continue
		}
		for _, kh := range v.Table().Keys() {
			kh.Value().AdjustExternalRefsForGC(1)
		}
		for _, vh := range v.Table().Values() {
			vh.Value().AdjustExternalRefsForGC(1)
		}
	}

	m.sweep()
}

func (m *VM) markReachable(v *value.Value) {
	if v.GCEpoch() == m.gcEpoch {
		return
	}
	v.SetGCEpoch(m.gcEpoch)
	if v.Kind() != value.KindTable {
		return
	}
	for _, kh := range v.Table().Keys() {
		m.markReachable(kh.Value())
	}
	for _, vh := range v.Table().Values() {
		m.markReachable(vh.Value())
	}
}

// sweep tears down every unmarked Value. Doomed values may reference
// each other (the whole point of this collector existing), so each
// one is first held by a private Handle and unregistered from the VM
// list, then every payload is cleared (breaking all outgoing doomed→
// doomed references) before any private Handle is released.
func (m *VM) sweep() {
	var doomed []*value.Value
	survivors := m.objects[:0]
	for _, v := range m.objects {
		if v.GCEpoch() == m.gcEpoch {
			survivors = append(survivors, v)
			continue
		}
		doomed = append(doomed, v)
	}
	m.objects = survivors
	for i, v := range m.objects {
		v.SetAllocIndex(i)
	}

	if len(doomed) == 0 {
		m.updateThreshold()
		return
	}

	private := make([]*value.Handle, len(doomed))
	for i, v := range doomed {
		private[i] = value.Bind(v)
		v.MarkUnregistered()
	}
	for _, v := range doomed {
		v.ClearPayloadForGC()
	}
	for _, h := range private {
		h.Destroy()
	}

	m.updateThreshold()
}

// updateThreshold sets the next auto-GC trigger to the next power of
// two above the surviving population, floored at the configured
// minimum (spec.md §4.9).
func (m *VM) updateThreshold() {
	floor := m.limits.GCThresholdFloor
	n := len(m.objects)
	threshold := floor
	for threshold <= n {
		threshold *= 2
	}
	m.gcThreshold = threshold
}
