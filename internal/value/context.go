package value

// slot is one Context binding: a Handle plus its own protected flag
// (independent of the pointed-to Value's const flag — spec.md §4).
type slot struct {
	handle    *Handle
	protected bool
}

// Context is one lexical scope (spec component 4): a name→Handle
// mapping with per-name protection, and an optional parent the
// evaluator never owns (block/call scopes are stack-allocated and
// simply stop being referenced when their frame returns).
type Context struct {
	vars   map[string]*slot
	parent *Context
}

// NewContext creates a scope whose lookups fall back to parent (nil
// for a root scope).
func NewContext(parent *Context) *Context {
	return &Context{vars: make(map[string]*slot), parent: parent}
}

// Parent returns the enclosing scope, or nil at the root.
func (c *Context) Parent() *Context { return c.parent }

// SetVariable inserts or overwrites the local slot for name, destroying
// whatever Handle previously occupied it.
func (c *Context) SetVariable(name string, h *Handle) {
	if existing, ok := c.vars[name]; ok {
		existing.handle.Destroy()
		existing.handle = h
		return
	}
	c.vars[name] = &slot{handle: h}
}

// UnsetVariable removes the local slot for name, if any. The
// `protected` flag that slot carried is discarded along with it.
func (c *Context) UnsetVariable(name string) {
	if existing, ok := c.vars[name]; ok {
		existing.handle.Destroy()
		delete(c.vars, name)
	}
}

// GetVariable looks up name locally, falling back to the parent chain.
// Returns nil if not found anywhere.
func (c *Context) GetVariable(name string) *Handle {
	if s, ok := c.vars[name]; ok {
		return s.handle
	}
	if c.parent != nil {
		return c.parent.GetVariable(name)
	}
	return nil
}

// HasLocal reports whether name is bound in this context specifically
// (not a parent) — `variable-dec` uses this to reject re-declaration.
func (c *Context) HasLocal(name string) bool {
	_, ok := c.vars[name]
	return ok
}

// DeclareLocal binds name to h as a brand-new local slot. The caller
// (OpVariableDec's evaluator case) must check HasLocal first; this
// does not itself enforce the no-redeclaration rule, since a few
// callers (built-in/native registration on the internal context,
// parameter binding in a fresh call context) legitimately want to
// (re)seed a slot.
func (c *Context) DeclareLocal(name string, h *Handle) {
	c.vars[name] = &slot{handle: h}
}

// SetVariableProtected sets the per-name protected flag. It is a
// no-op if name has no local slot — protection is per-context, not
// inherited, so it never recurses to the parent.
func (c *Context) SetVariableProtected(name string, protected bool) {
	if s, ok := c.vars[name]; ok {
		s.protected = protected
	}
}

// GetVariableProtected reports the local slot's protected flag (false
// if name has no local slot).
func (c *Context) GetVariableProtected(name string) bool {
	s, ok := c.vars[name]
	return ok && s.protected
}

// Slot returns the slot pointer itself so the evaluator can rebind it
// in place (`:=`). Valid only until the next mutation of this
// Context — spec.md §4.4's `get-variable-slot`. When noRecurse is
// false and name isn't local, the parent chain is searched the same
// way GetVariable does.
func (c *Context) Slot(name string, noRecurse bool) (handle **Handle, protected bool, ok bool) {
	if s, found := c.vars[name]; found {
		return &s.handle, s.protected, true
	}
	if !noRecurse && c.parent != nil {
		return c.parent.Slot(name, false)
	}
	return nil, false, false
}

// ClearAllVariables drops every slot and its protection flag.
func (c *Context) ClearAllVariables() {
	for _, s := range c.vars {
		s.handle.Destroy()
	}
	c.vars = make(map[string]*slot)
}

// Names returns the locally-bound identifier names (unordered) — used
// by the "did you mean" diagnostics to rank candidates.
func (c *Context) Names() []string {
	out := make([]string, 0, len(c.vars))
	for name := range c.vars {
		out = append(out, name)
	}
	return out
}

// AllVisibleNames walks the parent chain collecting every visible
// identifier, for suggestion ranking across the whole scope chain.
func (c *Context) AllVisibleNames() []string {
	seen := map[string]struct{}{}
	var out []string
	for ctx := c; ctx != nil; ctx = ctx.parent {
		for name := range ctx.vars {
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	return out
}
