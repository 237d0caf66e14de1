package dtbpatch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/u-root/u-root/pkg/dt"
)

var (
	ErrUnknownFormat    = errors.New("dtbpatch: input is neither a device tree blob nor recognized compressed data")
	ErrNoCompressReader = errors.New("dtbpatch: no suitable CompressReader found")
)

// The input could not be read as a device tree blob.
type ParseError struct {
	Format Lookahead // What the input looked like before parsing
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dtbpatch: parse %s input: %s", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Read a device tree blob, which may be compressed with any scheme in
// [CompressReaders]. Returns the parsed tree along with what the input was
// identified as.
//
// Errors reading from r are returned as-is; anything wrong with the content
// itself is returned as a [ParseError].
func ReadBlob(r io.Reader) (*dt.FDT, Lookahead, error) {
	var br = bufio.NewReader(r)

	la, err := PeekLookahead(br)
	if err != nil {
		return nil, la, err
	}

	var in io.Reader = br

	switch {
	case la == Blob:
	case la.Compression():
		dec, ok := CompressReaders[la]
		if !ok {
			return nil, la, &ParseError{Format: la, Err: ErrNoCompressReader}
		}

		if in, err = dec(br); err != nil {
			return nil, la, &ParseError{Format: la, Err: err}
		}

		if c, ok := in.(io.Closer); ok {
			defer c.Close()
		}
	default:
		return nil, la, &ParseError{Format: la, Err: ErrUnknownFormat}
	}

	data, err := io.ReadAll(in)
	if err != nil {
		if la.Compression() {
			return nil, la, &ParseError{Format: la, Err: err}
		}
		return nil, la, err
	}

	fdt, err := dt.ReadFDT(blobReader{bytes.NewReader(data)})
	if err != nil {
		return nil, la, &ParseError{Format: la, Err: err}
	}

	return fdt, la, nil
}

// Wraps [bytes.Reader] so that a zero length read at the end of the input
// succeeds. A blob without properties has an empty strings block as its last
// section, and [dt.ReadFDT] reads it with a plain Read.
type blobReader struct{ *bytes.Reader }

func (r blobReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return r.Reader.Read(p)
}

// Serialize the tree as an uncompressed flattened device tree blob.
func WriteBlob(w io.Writer, fdt *dt.FDT) (int64, error) {
	n, err := fdt.Write(w)
	return int64(n), err
}

// Parse a blob, record the initrd location and serialize the result.
func PatchBlob(blob []byte, start, size uint64) ([]byte, error) {
	out, _, _, err := PatchReader(bytes.NewReader(blob), start, size)
	return out, err
}

// Like [PatchBlob], reading the blob from r. Also returns what the input was
// identified as and the patched chosen node.
func PatchReader(r io.Reader, start, size uint64) (blob []byte, format Lookahead, chosen *dt.Node, err error) {
	fdt, format, err := ReadBlob(r)
	if err != nil {
		return nil, format, nil, err
	}

	if chosen, err = Patch(fdt, start, size); err != nil {
		return nil, format, nil, err
	}

	var out bytes.Buffer
	if _, err := WriteBlob(&out, fdt); err != nil {
		return nil, format, nil, fmt.Errorf("WriteBlob: %w", err)
	}
	return out.Bytes(), format, chosen, nil
}

// Write data to the named file such that either the whole of data ends up in
// the file or the file is left as it was. A temporary file is written in the
// same directory and renamed over the destination.
func WriteFileAtomic(name string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}

	var tmp = f.Name()

	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return err
	}

	if err = f.Chmod(0o644); err != nil {
		return err
	}

	if err = f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, name)
}
