package encryption

import (
	"bytes"
	"os"
	"runtime"

	"github.com/natefinch/atomic"

	"github.com/coreperf-io/coreperf/client/errs"
)

// zeroBytes overwrites a byte slice with zeros
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrapf(errs.Encryption, err, "failed to read %s", path)
	}
	return data, nil
}

// replaceFile writes data to a temporary file next to path and renames it
// over path, so a crash never leaves a half-written file behind.
func replaceFile(path string, data []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return errs.Wrapf(errs.Encryption, err, "failed to replace %s", path)
	}
	return nil
}
