package fileheader

import "log"

// Dump logs a one-line summary of a header, the way the teacher's
// debug.PrintBlock logs a summary of a cached disk block.
func Dump(sector int, h *FileHeader) {
	kind := "file"
	if h.IsDirectory() {
		kind = "dir"
	}
	log.Printf("header @%d: %s size=%d sectors=%d indirect=%d",
		sector, kind, h.NumBytes, h.NumSectors, h.NumIndirectBlocks())
}
