package codegen

// A unit body is walked twice by the same traversal code. The shadow pass
// only records which storage the body needs; the emit pass writes code and
// refers to the names the shadow pass registered. Both passes run the
// traversal from identical starting counters, so every temporary gets the
// same name in both.
type pass interface {
	// shadow reports whether this is the declaration-discovery pass.
	shadow() bool
	// declare registers a frame slot in the innermost open region.
	declare(name, ctype string)
	// declareLocal registers a script local once, at the frame root.
	declareLocal(name, ctype string)
	// openRegion starts a nested region; union regions overlap their
	// children, struct regions lay them out one after another.
	openRegion(union bool)
	closeRegion()
	// out is where code goes.
	out() *writer
}

type slot struct {
	name  string
	ctype string
}

// region is one node of a frame layout tree.
type region struct {
	union    bool
	slots    []slot
	children []*region
	parent   *region
}

func (r *region) empty() bool {
	if len(r.slots) > 0 {
		return false
	}
	for _, c := range r.children {
		if !c.empty() {
			return false
		}
	}
	return true
}

func (r *region) nonEmpty() []*region {
	var out []*region
	for _, c := range r.children {
		if !c.empty() {
			out = append(out, c)
		}
	}
	return out
}

// renderMembers writes r's members into the aggregate being rendered.
func (r *region) renderMembers(w *writer) {
	for _, s := range r.slots {
		w.line("%s %s;", s.ctype, s.name)
	}
	for _, c := range r.nonEmpty() {
		c.renderInto(w, r.union)
	}
}

// renderInto writes r inside a parent aggregate. Nesting that cannot
// change the layout is dropped: a struct inside a struct, a union with a
// single member, a struct with a single slot inside a union. Anything
// else is rendered into its own buffer and appended, so that only regions
// that declared something leave a trace.
func (r *region) renderInto(w *writer, parentUnion bool) {
	kids := r.nonEmpty()
	switch {
	case r.union && len(r.slots) == 0 && len(kids) == 1:
		kids[0].renderInto(w, parentUnion)
		return
	case !r.union && !parentUnion:
		r.renderMembers(w)
		return
	case !r.union && len(r.slots) == 1 && len(kids) == 0:
		r.renderMembers(w)
		return
	}
	sub := newWriter()
	r.renderAnon(sub)
	w.append(sub)
}

func (r *region) renderAnon(w *writer) {
	if r.union {
		w.open("union {")
	} else {
		w.open("struct {")
	}
	r.renderMembers(w)
	w.close("};")
}

// shadowPass records the frame layout and throws code away.
type shadowPass struct {
	root    *region
	cur     *region
	locals  []slot
	seen    map[string]bool
	scratch *writer
}

func newShadowPass() *shadowPass {
	root := &region{}
	return &shadowPass{root: root, cur: root, seen: map[string]bool{}, scratch: newWriter()}
}

func (p *shadowPass) shadow() bool { return true }

func (p *shadowPass) declare(name, ctype string) {
	p.cur.slots = append(p.cur.slots, slot{name: name, ctype: ctype})
}

func (p *shadowPass) declareLocal(name, ctype string) {
	if p.seen[name] {
		return
	}
	p.seen[name] = true
	p.locals = append(p.locals, slot{name: name, ctype: ctype})
}

func (p *shadowPass) openRegion(union bool) {
	r := &region{union: union, parent: p.cur}
	p.cur.children = append(p.cur.children, r)
	p.cur = r
}

func (p *shadowPass) closeRegion() {
	if p.cur.parent != nil {
		p.cur = p.cur.parent
	}
}

func (p *shadowPass) out() *writer { return p.scratch }

// layout is the result of a shadow pass.
type layout struct {
	locals []slot
	body   *region
}

func (p *shadowPass) layout() layout {
	return layout{locals: p.locals, body: p.root}
}

// emitPass writes code; declarations were settled by the shadow pass.
type emitPass struct {
	w *writer
}

func (p *emitPass) shadow() bool                { return false }
func (p *emitPass) declare(string, string)      {}
func (p *emitPass) declareLocal(string, string) {}
func (p *emitPass) openRegion(bool)             {}
func (p *emitPass) closeRegion()                {}
func (p *emitPass) out() *writer                { return p.w }

func (r *region) count() int {
	if r == nil {
		return 0
	}
	n := len(r.slots)
	for _, c := range r.children {
		n += c.count()
	}
	return n
}

// size is the number of frame slots the layout declares.
func (l layout) size() int { return len(l.locals) + l.body.count() }
