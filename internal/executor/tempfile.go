package executor

import (
	"math/rand/v2"
	"os"
	"path/filepath"
)

const tempFileNameLength = 10

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newTempFile allocates a scratch-area path under scratchDir named with a
// random 10-character token, per spec §4.3/§6. scratchDir is created if
// absent.
func newTempFile(scratchDir string) (string, error) {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(scratchDir, randomToken(tempFileNameLength)), nil
}

func randomToken(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rand.IntN(len(alphanumeric))]
	}
	return string(b)
}
