package directory

import "log"

// Dump logs every in-use entry, the way the teacher's debug.PrintBlock logs
// the contents of a cached directory block.
func Dump(sector int, dir *Directory) {
	log.Printf("directory @%d:", sector)
	for i, e := range dir.table {
		if e.inUse {
			log.Printf("  %s -> sector %d", dir.names[i], e.sector)
		}
	}
}
