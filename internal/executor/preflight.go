package executor

import (
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// preflightBuffer is held back beyond the reported content length so a
// transfer never drives a volume to exactly zero free space.
const preflightBuffer = 100 * 1024 * 1024

// checkDiskSpace verifies the scratch file's volume has room for the
// remaining bytes of a transfer before the stream loop starts.
func checkDiskSpace(scratchFile string, remaining int64) error {
	if remaining <= 0 {
		return nil
	}

	usage, err := disk.Usage(filepath.Dir(scratchFile))
	if err != nil {
		// Disk usage isn't queryable on every platform/filesystem; treat
		// this as advisory rather than failing the transfer outright.
		return nil
	}

	if int64(usage.Free) < remaining+preflightBuffer {
		return fmt.Errorf("disk full: need %d bytes, %d available", remaining, usage.Free)
	}
	return nil
}
