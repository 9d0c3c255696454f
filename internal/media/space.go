package media

import (
	"fmt"

	"golang.org/x/sys/unix"

	"rematrix/internal/services"
)

// CheckFreeSpace fails when the filesystem holding path has less than
// minBytes available. Render and merge call this before writing frames.
func CheckFreeSpace(path string, minBytes uint64) error {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return services.Wrap(services.ErrExternalTool, "", "statfs", path, err)
	}
	available := stat.Bavail * uint64(stat.Bsize)
	if available < minBytes {
		return services.Wrap(services.ErrConfiguration, "", "free space",
			fmt.Sprintf("%s has %d bytes free, need %d", path, available, minBytes), nil)
	}
	return nil
}
