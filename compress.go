package dtbpatch

import (
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// A [CompressReader] will decompress the given input.
type CompressReader func(input io.Reader) (io.Reader, error)

// Use the [Lookahead] token to select a suitable [CompressReader].
type CompressReaderMap map[Lookahead]CompressReader

// A global map of known compression readers.
var CompressReaders = CompressReaderMap{
	Gzip:  GzipReader,
	Bzip2: Bzip2Reader,
	Xz:    XzReader,
	Zstd:  ZstdReader,
}

// A [CompressReader] using [compress/gzip.NewReader].
func GzipReader(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }

// A [CompressReader] using [compress/bzip2.NewReader].
func Bzip2Reader(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil }

// A [CompressReader] using the [github.com/ulikunitz/xz] package.
func XzReader(r io.Reader) (io.Reader, error) { return xz.NewReader(r) }

// A [CompressReader] using the [github.com/klauspost/compress/zstd] package.
//
// The decoder runs synchronously since a device tree is read exactly once.
func ZstdReader(r io.Reader) (io.Reader, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
