// Record the location of an initial RAM disk in a flattened device tree blob.
//
// A Linux kernel booted with a device tree learns where its initrd lives from
// the `linux,initrd-start` and `linux,initrd-end` properties of the `/chosen`
// node, as described in the [chosen node bindings]. This package locates (or
// creates) that node in an existing blob, sets both properties and writes the
// blob back out in the [devicetree specification] flattened format.
//
// Addresses are stored as one 32-bit cell when they fit, otherwise as two cells
// with the high word first. See [Cells].
//
// See [go.pdmccormick.com/dtbpatch/cmd/updatedtbinitrd] for a command that
// patches a blob on disk.
//
// [chosen node bindings]: https://www.kernel.org/doc/Documentation/devicetree/bindings/chosen.txt
// [devicetree specification]: https://devicetree-specification.readthedocs.io/en/latest/chapter5-flattened-format.html
package dtbpatch
