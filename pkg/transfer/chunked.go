package transfer

import (
	"io"
	"os"
)

// ChunkReader reads a file in chunks.
type ChunkReader struct {
	file      *os.File
	chunkSize int
	offset    int64
	fileSize  int64
}

// NewChunkReader creates a new chunk reader for the given file.
func NewChunkReader(path string, chunkSize int) (*ChunkReader, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &ChunkReader{
		file:      file,
		chunkSize: chunkSize,
		fileSize:  info.Size(),
	}, nil
}

// NextChunk reads and returns the next chunk, or nil at EOF.
func (r *ChunkReader) NextChunk() (*Chunk, error) {
	buf := make([]byte, r.chunkSize)
	n, err := io.ReadFull(r.file, buf)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}

	chunk := &Chunk{
		Offset: r.offset,
		Size:   n,
		Data:   buf[:n],
	}
	r.offset += int64(n)
	return chunk, nil
}

// CopyChunks writes the whole file to w chunk by chunk, calling onChunk after
// every chunk with the running byte count.
func (r *ChunkReader) CopyChunks(w io.Writer, onChunk func(sent int64)) error {
	for {
		chunk, err := r.NextChunk()
		if err != nil {
			return err
		}
		if chunk == nil {
			return nil
		}
		if _, err := w.Write(chunk.Data); err != nil {
			return err
		}
		if onChunk != nil {
			onChunk(r.offset)
		}
	}
}

// Close closes the underlying file.
func (r *ChunkReader) Close() error {
	return r.file.Close()
}

// FileSize returns the total file size.
func (r *ChunkReader) FileSize() int64 {
	return r.fileSize
}
