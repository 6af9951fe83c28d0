// This command formats and inspects a NACHOS-style disk image, and hosts a
// user program's address space and kernel threads over it. It does not run
// user instructions itself -- that is the job of the (out-of-scope) CPU
// simulator, which would drive kernel.Dispatcher.RunUser -- but it wires up
// everything that simulator would need: a formatted file system, a loaded
// address space, and a scheduler with the program's initial thread ready.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/disk"
	"github.com/jnwhiteh/nachosfs/filesys"
	"github.com/jnwhiteh/nachosfs/kernel"
	"github.com/jnwhiteh/nachosfs/machine"
	"github.com/jnwhiteh/nachosfs/vm"
)

func ferr(f string, s ...interface{}) {
	fmt.Fprintf(os.Stderr, f, s...)
}

func openDisk(imagePath string, format bool) (*filesys.FileSystem, error) {
	d, err := disk.NewFileDisk(imagePath)
	if err != nil {
		return nil, fmt.Errorf("opening disk image %q: %w", imagePath, err)
	}
	if format {
		if err := filesys.Format(d); err != nil {
			return nil, fmt.Errorf("formatting %q: %w", imagePath, err)
		}
	}
	return filesys.Open(d)
}

func main() {
	var imagePath string
	var format bool
	flag.StringVar(&imagePath, "disk", "nachos.img", "the simulated disk image file")
	flag.BoolVar(&format, "format", false, "format the disk image before doing anything else")
	flag.Parse()

	args := flag.Args()
	if format && len(args) == 0 {
		if _, err := openDisk(imagePath, true); err != nil {
			log.Fatalf("nachos: %s", err)
		}
		fmt.Printf("formatted %s\n", imagePath)
		return
	}
	if len(args) == 0 {
		ferr("usage: %s [-disk image] [-format] <run|fs> ...\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	switch args[0] {
	case "run":
		cmdRun(imagePath, format, args[1:])
	case "fs":
		cmdFs(imagePath, format, args[1:])
	default:
		ferr("nachos: unknown command %q\n", args[0])
		os.Exit(1)
	}
}

// cmdRun implements the "run <executable>" surface: it loads executable as a
// fresh AddressSpace, installs it on a new Machine, and creates the main
// kernel thread ready to receive traps -- the same setup exception.cc's
// StartProcess performs before handing control to the CPU simulator. Since
// that simulator is out of scope here, this only reports the loaded layout
// instead of executing it.
func cmdRun(imagePath string, format bool, args []string) {
	if len(args) != 1 {
		ferr("usage: nachos run <executable>\n")
		os.Exit(1)
	}

	fs, err := openDisk(imagePath, format)
	if err != nil {
		log.Fatalf("nachos: %s", err)
	}

	of, err := fs.Open(args[0])
	if err != nil {
		log.Fatalf("nachos: opening executable %q: %s", args[0], err)
	}
	defer of.Close()

	m := machine.New(1)
	as, err := vm.New(m, readerAtOpenFile{of})
	if err != nil {
		log.Fatalf("nachos: loading %q: %s", args[0], err)
	}
	as.RestoreState()
	as.InitRegisters()

	sched := kernel.New()
	main := sched.NewMainThread()
	main.AS = as
	main.PFSvc = vm.NewPageFaultService()

	// A Dispatcher is what would service this thread's syscall and
	// page-fault traps; it is not constructed here because nothing in this
	// command drives it without a CPU simulator feeding it instructions.
	fmt.Printf("loaded %s: %d physical frames reserved, entry pc %#x\n", args[0], len(as.PageTable()), m.ReadRegister(config.PCReg))
	fmt.Println("no CPU simulator is wired up to execute instructions; address space and thread 0 are ready for one")
}

// readerAtOpenFile adapts filesys.OpenFile's int-offset ReadAt to the
// io.ReaderAt vm.New requires, the same adapter kernel.Dispatcher uses for
// Exec.
type readerAtOpenFile struct{ of *filesys.OpenFile }

func (r readerAtOpenFile) ReadAt(p []byte, off int64) (int, error) {
	return r.of.ReadAt(p, int(off))
}

func cmdFs(imagePath string, format bool, args []string) {
	if len(args) == 0 {
		ferr("usage: nachos fs <create|remove|list|cat|copy-in|copy-out|debug> ...\n")
		os.Exit(1)
	}

	fs, err := openDisk(imagePath, format)
	if err != nil {
		log.Fatalf("nachos: %s", err)
	}

	switch args[0] {
	case "create":
		if len(args) != 2 {
			ferr("usage: nachos fs create <path>\n")
			os.Exit(1)
		}
		if err := fs.Create(args[1], 0, config.Regular); err != nil {
			log.Fatalf("nachos: create %q: %s", args[1], err)
		}

	case "remove":
		if len(args) != 2 {
			ferr("usage: nachos fs remove <path>\n")
			os.Exit(1)
		}
		if _, err := fs.Remove(args[1]); err != nil {
			log.Fatalf("nachos: remove %q: %s", args[1], err)
		}

	case "list":
		dir := "/"
		if len(args) == 2 {
			dir = args[1]
		}
		names, err := fs.List(dir)
		if err != nil {
			log.Fatalf("nachos: list %q: %s", dir, err)
		}
		for _, name := range names {
			fmt.Println(name)
		}

	case "cat":
		if len(args) != 2 {
			ferr("usage: nachos fs cat <path>\n")
			os.Exit(1)
		}
		data, err := fs.Cat(args[1])
		if err != nil {
			log.Fatalf("nachos: cat %q: %s", args[1], err)
		}
		os.Stdout.Write(data)

	case "copy-in":
		if len(args) != 3 {
			ferr("usage: nachos fs copy-in <hostpath> <nachospath>\n")
			os.Exit(1)
		}
		copyIntoImage(fs, args[1], args[2])

	case "copy-out":
		if len(args) != 3 {
			ferr("usage: nachos fs copy-out <nachospath> <hostpath>\n")
			os.Exit(1)
		}
		copyOutOfImage(fs, args[1], args[2])

	case "debug":
		fs.Debug()

	default:
		ferr("nachos: unknown fs subcommand %q\n", args[0])
		os.Exit(1)
	}
}

func copyIntoImage(fs *filesys.FileSystem, hostPath, nachosPath string) {
	data, err := os.ReadFile(hostPath)
	if err != nil {
		log.Fatalf("nachos: reading %q: %s", hostPath, err)
	}
	if err := fs.Create(nachosPath, len(data), config.Regular); err != nil {
		log.Fatalf("nachos: create %q: %s", nachosPath, err)
	}
	of, err := fs.Open(nachosPath)
	if err != nil {
		log.Fatalf("nachos: open %q: %s", nachosPath, err)
	}
	defer of.Close()
	if _, err := of.WriteAt(data, 0); err != nil {
		log.Fatalf("nachos: writing %q: %s", nachosPath, err)
	}
}

func copyOutOfImage(fs *filesys.FileSystem, nachosPath, hostPath string) {
	data, err := fs.Cat(nachosPath)
	if err != nil {
		log.Fatalf("nachos: cat %q: %s", nachosPath, err)
	}
	if err := os.WriteFile(hostPath, data, 0644); err != nil {
		log.Fatalf("nachos: writing %q: %s", hostPath, err)
	}
}
