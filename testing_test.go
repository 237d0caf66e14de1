package dtbpatch

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/u-root/u-root/pkg/dt"
)

// Structure block tokens.
const (
	fdtBeginNode = 0x1
	fdtEndNode   = 0x2
	fdtProp      = 0x3
	fdtEnd       = 0x9
)

const fdtHeaderSize = 40

// A memory reservation map entry.
type reservation struct {
	Address, Size uint64
}

func appendPad4(b *bytes.Buffer) {
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
}

func appendU32(b *bytes.Buffer, v uint32) {
	b.Write(binary.BigEndian.AppendUint32(nil, v))
}

// Encode a version 17 flattened device tree blob by hand.
func encodeBlob(root *dt.Node, rsv ...reservation) []byte {
	var (
		structs bytes.Buffer
		strs    bytes.Buffer
		nameOff = make(map[string]uint32)
	)

	var emit func(n *dt.Node)
	emit = func(n *dt.Node) {
		appendU32(&structs, fdtBeginNode)
		structs.WriteString(n.Name)
		structs.WriteByte(0)
		appendPad4(&structs)

		for _, p := range n.Properties {
			off, ok := nameOff[p.Name]
			if !ok {
				off = uint32(strs.Len())
				nameOff[p.Name] = off
				strs.WriteString(p.Name)
				strs.WriteByte(0)
			}

			appendU32(&structs, fdtProp)
			appendU32(&structs, uint32(len(p.Value)))
			appendU32(&structs, off)
			structs.Write(p.Value)
			appendPad4(&structs)
		}

		for _, child := range n.Children {
			emit(child)
		}

		appendU32(&structs, fdtEndNode)
	}

	emit(root)
	appendU32(&structs, fdtEnd)

	var rsvmap bytes.Buffer
	for _, r := range append(rsv, reservation{}) {
		rsvmap.Write(binary.BigEndian.AppendUint64(nil, r.Address))
		rsvmap.Write(binary.BigEndian.AppendUint64(nil, r.Size))
	}

	var (
		offRsvmap  = fdtHeaderSize
		offStruct  = offRsvmap + rsvmap.Len()
		offStrings = offStruct + structs.Len()
		totalSize  = offStrings + strs.Len()
		blob       bytes.Buffer
	)

	for _, v := range []uint32{
		FDTMagic,
		uint32(totalSize),
		uint32(offStruct),
		uint32(offStrings),
		uint32(offRsvmap),
		17, // version
		16, // last compatible version
		0,  // boot cpu
		uint32(strs.Len()),
		uint32(structs.Len()),
	} {
		appendU32(&blob, v)
	}

	blob.Write(rsvmap.Bytes())
	blob.Write(structs.Bytes())
	blob.Write(strs.Bytes())

	return blob.Bytes()
}

// Read the memory reservation map straight out of a blob.
func decodeReservations(t *testing.T, blob []byte) []reservation {
	t.Helper()

	if len(blob) < fdtHeaderSize {
		t.Fatalf("blob too short: %d bytes", len(blob))
	}

	var (
		offs = int(binary.BigEndian.Uint32(blob[16:]))
		rsv  []reservation
	)

	for ; offs+16 <= len(blob); offs += 16 {
		var r = reservation{
			Address: binary.BigEndian.Uint64(blob[offs:]),
			Size:    binary.BigEndian.Uint64(blob[offs+8:]),
		}
		if r == (reservation{}) {
			return rsv
		}
		rsv = append(rsv, r)
	}

	t.Fatalf("unterminated memory reservation map")
	return nil
}

func stringValue(s string) []byte { return []byte(s + "\x00") }

func cellsValue(cells ...uint32) []byte { return EncodeCells(cells) }

// A small arm64 virt-style tree without a chosen node.
func testTree() *dt.Node {
	return &dt.Node{
		Properties: []dt.Property{
			{Name: "#address-cells", Value: cellsValue(2)},
			{Name: "#size-cells", Value: cellsValue(2)},
			{Name: "compatible", Value: stringValue("linux,dummy-virt")},
		},
		Children: []*dt.Node{
			{
				Name: "memory@40000000",
				Properties: []dt.Property{
					{Name: "device_type", Value: stringValue("memory")},
					{Name: "reg", Value: cellsValue(0, 0x4000_0000, 0, 0x4000_0000)},
				},
			},
			{
				Name: "soc",
				Properties: []dt.Property{
					{Name: "ranges", Value: nil},
				},
				Children: []*dt.Node{
					{
						Name: "uart@9000000",
						Properties: []dt.Property{
							{Name: "compatible", Value: stringValue("arm,pl011")},
							{Name: "reg", Value: cellsValue(0, 0x0900_0000, 0, 0x1000)},
						},
					},
				},
			},
		},
	}
}

// Like [testTree], but with a chosen node holding the given properties.
func testTreeWithChosen(props ...dt.Property) *dt.Node {
	var root = testTree()
	root.Children = append(root.Children, &dt.Node{
		Name:       ChosenName,
		Properties: props,
	})
	return root
}

type flatProp struct {
	Name  string
	Value []byte
}

type flatNode struct {
	Path  string
	Props []flatProp
}

// Flatten a tree into a comparable list of nodes in depth-first order.
func flatten(root *dt.Node) []flatNode {
	var nodes []flatNode
	for path, n := range Nodes(root) {
		var fn = flatNode{Path: path}
		for _, p := range n.Properties {
			fn.Props = append(fn.Props, flatProp{Name: p.Name, Value: p.Value})
		}
		nodes = append(nodes, fn)
	}
	return nodes
}

// Like [flatten], but leaving out the node at path.
func flattenWithout(root *dt.Node, path string) []flatNode {
	var nodes []flatNode
	for _, n := range flatten(root) {
		if n.Path != path {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func diffTrees(want, got []flatNode) string {
	return cmp.Diff(want, got, cmpopts.EquateEmpty())
}

func parseBlob(t *testing.T, blob []byte) *dt.FDT {
	t.Helper()

	fdt, err := dt.ReadFDT(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("ReadFDT: %s", err)
	}
	return fdt
}

func propertyCells(t *testing.T, n *dt.Node, name string) []uint32 {
	t.Helper()

	p, ok := LookupProperty(n, name)
	if !ok {
		t.Fatalf("property %s missing", name)
	}

	cells, err := DecodeCells(p.Value)
	if err != nil {
		t.Fatalf("DecodeCells %s: %s", name, err)
	}
	return cells
}

func countProperties(n *dt.Node, name string) (k int) {
	for _, p := range n.Properties {
		if p.Name == name {
			k++
		}
	}
	return
}
