package system

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	diskfs "github.com/diskfs/go-diskfs"
	diskpkg "github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/partition/mbr"
)

// FirstSector aligns a freshly created partition to 1 MiB.
const FirstSector = 2048

// cardOpenMode opens a card whose other partitions stay mounted. The kernel
// refuses O_EXCL on such a disk.
const cardOpenMode = diskfs.ReadWrite

// Disks rewrites partition tables and creates FAT32 filesystems.
type Disks struct {
	Logger *slog.Logger
	DryRun bool
}

// Size returns the size in bytes of a block device or image file.
func Size(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Seek(0, io.SeekEnd)
}

// AppendPartition adds a FAT32 (LBA) primary partition to the MBR of
// device, starting at sector start and spanning the rest of the device.
// The running system keeps the card mounted, so the table is written without
// asking the kernel to re-read it; the new partition appears after reboot.
func (d *Disks) AppendPartition(device string, start uint32) error {
	if d.DryRun {
		d.Logger.Info("Dry run: would append partition", "device", device, "start", start)
		return nil
	}

	disk, err := diskfs.Open(device, diskfs.WithOpenMode(cardOpenMode))
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}
	defer disk.Close()

	pt, err := disk.GetPartitionTable()
	if err != nil {
		return fmt.Errorf("read partition table of %s: %w", device, err)
	}
	table, ok := pt.(*mbr.Table)
	if !ok {
		return fmt.Errorf("%s: partition table is %s, want dos", device, pt.Type())
	}

	sectors := uint32(disk.Size / disk.LogicalBlocksize)
	if start >= sectors {
		return fmt.Errorf("%s: start sector %d beyond end of device (%d sectors)", device, start, sectors)
	}

	var parts []*mbr.Partition
	for _, p := range table.Partitions {
		if p == nil || p.Type == mbr.Empty {
			continue
		}
		if p.Start+p.Size > start {
			return fmt.Errorf("%s: partition at sector %d overlaps new start %d", device, p.Start, start)
		}
		parts = append(parts, p)
	}
	if len(parts) >= 4 {
		return fmt.Errorf("%s: no free primary partition slot", device)
	}

	parts = append(parts, &mbr.Partition{
		Type:  mbr.Fat32LBA,
		Start: start,
		Size:  sectors - start,
	})
	table.Partitions = parts

	d.Logger.Info("Appending partition", "device", device, "start", start, "sectors", sectors-start)
	if err := table.Write(disk.File, disk.Size); err != nil {
		return fmt.Errorf("write partition table of %s: %w", device, err)
	}
	return nil
}

// FormatCard replaces the partition table of device with one FAT32
// partition from FirstSector to the end and formats it with label.
func (d *Disks) FormatCard(device, label string) error {
	if d.DryRun {
		d.Logger.Info("Dry run: would format card", "device", device, "label", label)
		return nil
	}

	disk, err := diskfs.Open(device)
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}
	defer disk.Close()

	sectorSize := int(disk.LogicalBlocksize)
	sectors := uint32(disk.Size / disk.LogicalBlocksize)
	if sectors <= FirstSector {
		return fmt.Errorf("%s: device too small", device)
	}

	table := &mbr.Table{
		LogicalSectorSize:  sectorSize,
		PhysicalSectorSize: sectorSize,
		Partitions: []*mbr.Partition{
			{
				Type:  mbr.Fat32LBA,
				Start: FirstSector,
				Size:  sectors - FirstSector,
			},
		},
	}

	d.Logger.Info("Writing partition table", "device", device)
	if err := disk.Partition(table); err != nil {
		return fmt.Errorf("write partition table of %s: %w", device, err)
	}

	d.Logger.Info("Creating filesystem", "device", device, "label", label)
	spec := diskpkg.FilesystemSpec{
		Partition:   1,
		FSType:      filesystem.TypeFat32,
		VolumeLabel: label,
	}
	if _, err := disk.CreateFilesystem(spec); err != nil {
		return fmt.Errorf("format %s: %w", device, err)
	}
	return nil
}

// FormatPartition creates a FAT32 filesystem spanning the whole of a
// partition device.
func (d *Disks) FormatPartition(device, label string) error {
	if d.DryRun {
		d.Logger.Info("Dry run: would format partition", "device", device, "label", label)
		return nil
	}

	disk, err := diskfs.Open(device)
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}
	defer disk.Close()

	d.Logger.Info("Creating filesystem", "device", device, "label", label)
	spec := diskpkg.FilesystemSpec{
		Partition:   0,
		FSType:      filesystem.TypeFat32,
		VolumeLabel: label,
	}
	if _, err := disk.CreateFilesystem(spec); err != nil {
		return fmt.Errorf("format %s: %w", device, err)
	}
	return nil
}
