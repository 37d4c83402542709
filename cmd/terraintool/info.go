package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Faultbox/terrainer/pkg/region"
)

func cmdInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	levels := fs.Bool("levels", false, "Show the height extent of every persisted level")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: terraintool info [-levels] <region.bin>...")
		os.Exit(1)
	}

	failed := false
	for i, path := range fs.Args() {
		if i > 0 {
			fmt.Println()
		}
		if err := printRegion(path, *levels); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func printRegion(path string, levels bool) error {
	r, err := region.Open(path, true)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header
	fmt.Printf("Region:     %s\n", path)
	fmt.Printf("Byte order: %s\n", h.Endian)
	fmt.Printf("Chunk size: %d\n", h.ChunkSize)
	fmt.Printf("Region:     %dx%d chunks\n", h.RegionSize, h.RegionSize)
	fmt.Printf("LODs:       %d\n", h.LODs)
	fmt.Printf("Version:    %d\n", h.Data.Version)
	fmt.Printf("Sections:   %s\n", sections(h.Data.Flags))
	fmt.Printf("Minmax:     %d bytes\n", h.MinmaxSize())

	if !levels {
		return nil
	}
	fmt.Println()
	fmt.Println("Levels:")
	for lod := 0; lod < h.LODs; lod++ {
		vals, err := r.ReadMinmaxLevel(lod)
		if err != nil {
			return err
		}
		lo, hi := extent(vals)
		n := h.LevelSize(lod)
		fmt.Printf("  %2d  %4dx%-4d  %5d..%-5d\n", lod, n, n, lo, hi)
	}
	return nil
}

func sections(flags uint8) string {
	names := []struct {
		flag uint8
		name string
	}{
		{region.FlagMinmax, "minmax"},
		{region.FlagHeight, "height"},
		{region.FlagSplat, "splat"},
		{region.FlagMeta, "meta"},
	}

	out := ""
	for _, n := range names {
		if flags&n.flag == 0 {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += n.name
	}
	if out == "" {
		return "(none)"
	}
	return out
}

// extent returns the lowest minimum and highest maximum of a minmax level.
func extent(vals []uint16) (uint16, uint16) {
	lo, hi := uint16(0xFFFF), uint16(0)
	for i := 0; i+1 < len(vals); i += 2 {
		lo = min(lo, vals[i])
		hi = max(hi, vals[i+1])
	}
	return lo, hi
}
