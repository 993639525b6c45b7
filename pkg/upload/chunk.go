package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// StreamStats summarizes one streaming pass.
type StreamStats struct {
	Chunks int
	Bytes  int64
}

// StreamChunks reads r sequentially and sends it to the session in chunks
// of exactly chunkSize bytes; only the final chunk may be shorter.
//
// Offsets start at 0 and advance by the length of each chunk sent. The
// first failed update stops the stream and is returned as
// *ChunkTransferError. A total that differs from the session size is
// reported with ErrSizeMismatch; input beyond the session size is never
// sent.
func StreamChunks(ctx context.Context, svc Service, s *Session, r io.Reader, chunkSize int, logger *zap.Logger) (StreamStats, error) {
	var stats StreamStats
	if err := ValidateChunkSize(int64(chunkSize)); err != nil {
		return stats, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	buf := make([]byte, chunkSize)
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return stats, &ChunkTransferError{UploadID: s.ID, Offset: offset, Err: err}
		}

		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if offset+int64(n) > s.Size {
				return stats, &ChunkTransferError{UploadID: s.ID, Offset: offset, Err: ErrSizeMismatch}
			}
			chunk := Chunk{Offset: offset, Payload: buf[:n], TotalSize: s.Size}
			if err := svc.UpdateUpload(ctx, s.RepositoryID, s.ID, chunk); err != nil {
				return stats, &ChunkTransferError{UploadID: s.ID, Offset: offset, Err: err}
			}
			logger.Debug("Chunk sent",
				zap.String("upload_id", s.ID),
				zap.Int64("offset", offset),
				zap.Int("bytes", n))
			offset += int64(n)
			stats.Chunks++
			stats.Bytes += int64(n)
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				break
			}
			return stats, &ChunkTransferError{UploadID: s.ID, Offset: offset, Err: rerr}
		}
	}

	if stats.Bytes != s.Size {
		return stats, &ChunkTransferError{UploadID: s.ID, Offset: offset, Err: ErrSizeMismatch}
	}
	return stats, nil
}

// ValidateChunkSize reports ErrInvalidChunkSize for sizes outside
// (0, MaxChunkSize].
func ValidateChunkSize(n int64) error {
	if n <= 0 || n > MaxChunkSize {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidChunkSize, n, MaxChunkSize)
	}
	return nil
}

// ChunkCount returns the number of update calls needed for size bytes.
func ChunkCount(size int64, chunkSize int) int64 {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	cs := int64(chunkSize)
	return (size + cs - 1) / cs
}

// Checksum returns the hex SHA-256 digest of r and the number of bytes read.
//
// The input is hashed as a stream; it is never buffered whole.
func Checksum(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
