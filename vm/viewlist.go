package vm

// noSlot marks an empty link or a view that is not linked anywhere.
const noSlot int32 = -1

type viewNode struct {
	view *Array
	prev int32
	next int32
}

// viewList is the set of copy views reading through an array's storage.
// It is an intrusive doubly linked list whose nodes live in an arena and
// are addressed by slot index; freed slots are reused.
type viewList struct {
	nodes []viewNode
	head  int32
	free  int32
	live  int
}

func newViewList() *viewList {
	return &viewList{head: noSlot, free: noSlot}
}

// add links v at the head and returns its slot.
func (l *viewList) add(v *Array) int32 {
	var slot int32
	if l.free != noSlot {
		slot = l.free
		l.free = l.nodes[slot].next
		l.nodes[slot] = viewNode{view: v, prev: noSlot, next: l.head}
	} else {
		slot = int32(len(l.nodes))
		l.nodes = append(l.nodes, viewNode{view: v, prev: noSlot, next: l.head})
	}
	if l.head != noSlot {
		l.nodes[l.head].prev = slot
	}
	l.head = slot
	l.live++
	return slot
}

// remove unlinks the node in slot and returns it to the free list.
func (l *viewList) remove(slot int32) {
	n := &l.nodes[slot]
	if n.view == nil {
		return
	}
	if n.prev != noSlot {
		l.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != noSlot {
		l.nodes[n.next].prev = n.prev
	}
	n.view = nil
	n.prev = noSlot
	n.next = l.free
	l.free = slot
	l.live--
}

// materializeAll gives every live view its own storage. Each view
// unlinks itself as it materializes.
func (l *viewList) materializeAll() {
	for l.head != noSlot {
		l.nodes[l.head].view.materialize()
	}
}

// len returns the number of linked views.
func (l *viewList) len() int {
	if l == nil {
		return 0
	}
	return l.live
}
