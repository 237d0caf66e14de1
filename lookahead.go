package dtbpatch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Identify what kind of data an input holds by looking ahead a few bytes and
// identifying magic values.
//
// Boot image pipelines sometimes ship device tree blobs compressed, so besides
// a raw flattened device tree the common kernel compression schemes are
// recognized.
type Lookahead int

const (
	UnknownLookahead Lookahead = iota
	EOF                        // End of file
	Blob                       // Start of a flattened device tree header
	Gzip                       // Start of Gzip compressed data
	Bzip2                      // Start of Bzip2 compressed data
	Xz                         // Start of XZ compressed data
	Zstd                       // Start of Zstd compressed data
)

// Uses [bufio.Reader.Peek] to determine what kind of data follows. Does not
// consume the input. Only returns non-EOF errors.
func PeekLookahead(br *bufio.Reader) (la Lookahead, err error) {
	peek, err := br.Peek(2)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return EOF, nil
		}

		return UnknownLookahead, err
	}

	var m = Magic(peek[0])<<8 | Magic(peek[1])
	switch m {
	case BlobMagic:
		if peek, err = br.Peek(4); err != nil {
			if errors.Is(err, io.EOF) {
				return UnknownLookahead, nil
			}
			return UnknownLookahead, err
		} else if FDTMagic == uint32(peek[0])<<24|uint32(peek[1])<<16|uint32(peek[2])<<8|uint32(peek[3]) {
			return Blob, nil
		}

	case GzipMagic1, GzipMagic2:
		return Gzip, nil
	case Bzip2Magic:
		return Bzip2, nil
	case XzMagic:
		return Xz, nil
	case ZstdMagic:
		return Zstd, nil
	}

	return UnknownLookahead, nil
}

// Returns true if and only if the lookahead indicates the start of compressed data.
func (la Lookahead) Compression() bool {
	switch la {
	case Gzip,
		Bzip2,
		Xz,
		Zstd:
		return true
	default:
		return false
	}
}

func (la Lookahead) String() string {
	switch la {
	case UnknownLookahead:
		return "unknown"
	case EOF:
		return "EOF"
	case Blob:
		return "dtb"
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case Xz:
		return "xz"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("0x%x", int(la))
	}
}

// The magic value at the start of every flattened device tree header.
const FDTMagic uint32 = 0xD00D_FEED

// Leading two byte values used to identify the start of a blob or a compressed
// data stream. The compression values match what the kernel uses, see
// [Linux kernel lib/decompress.c].
//
// [Linux kernel lib/decompress.c]: https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git/tree/lib/decompress.c
type Magic uint16

const (
	BlobMagic  Magic = 0xD0_0D // First half of FDTMagic
	GzipMagic1 Magic = 0x1F_8B
	GzipMagic2 Magic = 0x1F_9E
	Bzip2Magic Magic = 0x42_5A
	XzMagic    Magic = 0xFD_37
	ZstdMagic  Magic = 0x28_B5
)
