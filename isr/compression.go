package isr

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/saiset-co/sai-isr/types"
)

const (
	AlgorithmGzip    = "gzip"
	AlgorithmDeflate = "deflate"
	AlgorithmBrotli  = "br"

	DefaultCompressionLevel = 6
)

// Compressor shrinks cached entries before they hit the store and restores
// them on the serve path. Writers are pooled; readers are cheap enough to
// build per call.
type Compressor struct {
	algorithm  string
	level      int
	writerPool sync.Pool
	bufferPool sync.Pool
}

func NewCompressor(config *types.CompressionConfig) (*Compressor, error) {
	algorithm := AlgorithmBrotli
	level := DefaultCompressionLevel

	if config != nil {
		if config.Algorithm != "" {
			algorithm = config.Algorithm
		}
		if config.Level != 0 {
			level = config.Level
		}
	}

	switch algorithm {
	case AlgorithmGzip, AlgorithmDeflate, AlgorithmBrotli:
	default:
		return nil, types.Errorf(types.ErrCompressionTypeUnknown, "algorithm: %s", algorithm)
	}

	c := &Compressor{
		algorithm: algorithm,
		level:     level,
	}

	c.writerPool = sync.Pool{
		New: func() interface{} {
			return c.newWriter(nil)
		},
	}

	c.bufferPool = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 4096))
		},
	}

	return c, nil
}

func (c *Compressor) Algorithm() string {
	return c.algorithm
}

func (c *Compressor) Compress(data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	writer := c.writerPool.Get().(resettableWriter)
	writer.Reset(buf)

	if _, err := writer.Write(data); err != nil {
		c.writerPool.Put(writer)
		return nil, types.WrapError(err, "compression write failed")
	}

	if err := writer.Close(); err != nil {
		c.writerPool.Put(writer)
		return nil, types.WrapError(err, "compression close failed")
	}

	c.writerPool.Put(writer)

	return append([]byte(nil), buf.Bytes()...), nil
}

func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	var reader io.Reader
	var closer io.Closer

	switch c.algorithm {
	case AlgorithmGzip:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, types.WrapError(err, "gzip reader failed")
		}
		reader, closer = gz, gz
	case AlgorithmDeflate:
		fl := flate.NewReader(bytes.NewReader(data))
		reader, closer = fl, fl
	case AlgorithmBrotli:
		reader = brotli.NewReader(bytes.NewReader(data))
	}

	restored, err := io.ReadAll(reader)
	if closer != nil {
		closer.Close()
	}
	if err != nil {
		return nil, types.WrapError(err, "decompression failed")
	}

	return restored, nil
}

type resettableWriter interface {
	io.WriteCloser
	Reset(w io.Writer)
}

func (c *Compressor) newWriter(w io.Writer) resettableWriter {
	switch c.algorithm {
	case AlgorithmGzip:
		writer, _ := gzip.NewWriterLevel(w, c.clampedFlateLevel())
		return writer
	case AlgorithmDeflate:
		writer, _ := flate.NewWriter(w, c.clampedFlateLevel())
		return writer
	default:
		return brotli.NewWriterLevel(w, c.level)
	}
}

func (c *Compressor) clampedFlateLevel() int {
	if c.level < flate.HuffmanOnly || c.level > flate.BestCompression {
		return DefaultCompressionLevel
	}
	return c.level
}
