package modelmanager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// hashChunkSize keeps cancellation responsive while hashing multi-gigabyte
// model files.
const hashChunkSize = 1 << 20

// fileSHA256 computes the lowercase hex SHA-256 of the file at path,
// checking ctx between chunks.
func fileSHA256(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("modelmanager: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("modelmanager: read %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
