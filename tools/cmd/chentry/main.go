// Command chentry modifies the entry address of an ELF binary, used
// during the build to update kernel images.
package main

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strconv"
)

func usage(me string) {
	fmt.Printf("%s <filename> <addr>\n\nChange the ELF entry point of <filename> to <addr>\n", me)
	os.Exit(1)
}

// chkELF validates the ELF file header to ensure we are modifying the
// correct type of binary.
func chkELF(eh *elf.FileHeader) {
	if eh.Data != elf.ELFDATA2LSB {
		log.Fatal("not little-endian?")
	}
	if eh.Type != elf.ET_EXEC {
		log.Fatal("not an executable elf")
	}
	if eh.Machine != elf.EM_X86_64 {
		log.Fatal("not a 64 bit elf")
	}
}

func main() {
	if len(os.Args) != 3 {
		usage(os.Args[0])
	}
	fn := os.Args[1]
	addr, err := strconv.ParseUint(os.Args[2], 0, 64)
	if err != nil {
		log.Fatalf("invalid address %q", os.Args[2])
	}
	if addr>>32 != 0 {
		log.Fatal("entry is 64bit pointer; bootloader will perish")
	}
	f, err := os.OpenFile(fn, os.O_RDWR, 0)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		log.Fatal(err)
	}
	chkELF(&ef.FileHeader)

	fmt.Printf("using address 0x%x\n", addr)

	// e_entry sits at offset 24 of the ELF64 header; patch it in place
	// rather than rewriting the whole header.
	const entryOff = 24
	var ent [8]byte
	binary.LittleEndian.PutUint64(ent[:], addr)
	if _, err := f.WriteAt(ent[:], entryOff); err != nil {
		log.Fatal(err)
	}
}
