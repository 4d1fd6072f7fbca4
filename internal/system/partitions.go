package system

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Partitions lists the partition nodes of disk (mmcblk0p1, mmcblk0p2, ...)
// in partition-number order.
func Partitions(disk string) []string {
	matches, _ := filepath.Glob(disk + "p*")
	type part struct {
		path string
		n    int
	}
	var parts []part
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(m, disk+"p"))
		if err != nil {
			continue
		}
		parts = append(parts, part{m, n})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].n < parts[j].n })

	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.path
	}
	return out
}

// LastPartition returns the highest numbered partition of disk, or disk
// itself when it has none.
func LastPartition(disk string) string {
	parts := Partitions(disk)
	if len(parts) == 0 {
		return disk
	}
	return parts[len(parts)-1]
}

// Present reports whether path exists.
func Present(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SizeString renders a byte count the way the partition screen shows it:
// "N.N GiB" from 1 GiB up, whole MiB below.
func SizeString(bytes int64) string {
	mib := bytes / (1024 * 1024)
	if mib >= 1024 {
		return fmt.Sprintf("%d.%d GiB", mib/1024, (mib%1024)*10/1024)
	}
	return fmt.Sprintf("%d MiB", mib)
}
