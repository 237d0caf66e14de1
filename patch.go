package dtbpatch

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/u-root/u-root/pkg/dt"
)

// Names used for the initrd location within the device tree.
const (
	ChosenName      = "chosen"
	ChosenPath      = "/" + ChosenName
	InitrdStartProp = "linux,initrd-start"
	InitrdEndProp   = "linux,initrd-end"
)

var (
	ErrAddressOverflow = errors.New("dtbpatch: initrd end address overflows 64 bits")
	ErrNoInitrdRange   = errors.New("dtbpatch: node has no initrd range")
)

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// Provides a depth-first, pre-order sequence of every node below and including
// root, along with its full path. The root itself has path "/".
func Nodes(root *dt.Node) iter.Seq2[string, *dt.Node] {
	return func(yield func(path string, n *dt.Node) bool) {
		if root != nil {
			walk("/", root, yield)
		}
	}
}

func walk(path string, n *dt.Node, yield func(string, *dt.Node) bool) bool {
	if !yield(path, n) {
		return false
	}

	for _, child := range n.Children {
		if !walk(childPath(path, child.Name), child, yield) {
			return false
		}
	}
	return true
}

// Search the tree depth first for the node with the given full path.
func FindNode(root *dt.Node, path string) (*dt.Node, bool) {
	for p, n := range Nodes(root) {
		if p == path {
			return n, true
		}
	}
	return nil, false
}

// Returns the first property with the given name.
func LookupProperty(n *dt.Node, name string) (*dt.Property, bool) {
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			return &n.Properties[i], true
		}
	}
	return nil, false
}

// Set a property, replacing any existing value. Afterwards the node holds
// exactly one property with this name:
//   - An existing property keeps its position and takes the new value
//   - Further properties with the same name are removed
//   - If the property did not exist, it is appended
func SetProperty(n *dt.Node, name string, value []byte) {
	var (
		props = n.Properties[:0]
		found bool
	)

	for _, p := range n.Properties {
		if p.Name != name {
			props = append(props, p)
			continue
		}

		if !found {
			found = true
			props = append(props, dt.Property{Name: name, Value: value})
		}
	}

	if !found {
		props = append(props, dt.Property{Name: name, Value: value})
	}

	n.Properties = props
}

// Set a property to the big-endian encoding of cells.
func SetCells(n *dt.Node, name string, cells []uint32) {
	SetProperty(n, name, EncodeCells(cells))
}

// Record an initrd of size bytes starting at start on the chosen node, and
// return the end address. Returns [ErrAddressOverflow] without modifying the
// node if the end address does not fit in 64 bits.
func UpdateChosen(chosen *dt.Node, start, size uint64) (end uint64, err error) {
	if size > math.MaxUint64-start {
		return 0, fmt.Errorf("%w: start 0x%x, size 0x%x", ErrAddressOverflow, start, size)
	}

	end = start + size

	SetCells(chosen, InitrdStartProp, Cells(start))
	SetCells(chosen, InitrdEndProp, Cells(end))

	return end, nil
}

// Point the tree at an initrd of size bytes loaded at start. The `/chosen`
// node is created as the last child of the root if it does not already exist.
// The tree is modified in place and the chosen node is returned.
func Patch(fdt *dt.FDT, start, size uint64) (*dt.Node, error) {
	if fdt.RootNode == nil {
		fdt.RootNode = &dt.Node{}
	}

	var root = fdt.RootNode

	chosen, ok := FindNode(root, ChosenPath)
	if !ok {
		chosen = &dt.Node{Name: ChosenName}
		root.Children = append(root.Children, chosen)
	}

	if _, err := UpdateChosen(chosen, start, size); err != nil {
		return nil, err
	}

	return chosen, nil
}

// Read back the initrd range recorded on a node. Returns [ErrNoInitrdRange] if
// either property is missing.
func InitrdRange(n *dt.Node) (start, end uint64, err error) {
	if start, err = cellsProperty(n, InitrdStartProp); err != nil {
		return
	}
	end, err = cellsProperty(n, InitrdEndProp)
	return
}

func cellsProperty(n *dt.Node, name string) (uint64, error) {
	p, ok := LookupProperty(n, name)
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrNoInitrdRange, name)
	}

	cells, err := DecodeCells(p.Value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	v, err := CellsValue(cells)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
