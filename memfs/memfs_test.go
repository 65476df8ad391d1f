package memfs

import (
	"os"
	"strings"
	"testing"

	"nucleus/arch"
	"nucleus/blockdev"
	"nucleus/defs"
	"nucleus/stat"
	"nucleus/ustr"
	"nucleus/vfs"
)

// the block cache behind loadImage takes interrupt-aware locks.
func TestMain(m *testing.M) {
	arch.Bind(arch.NewFake())
	os.Exit(m.Run())
}

func comps(s ...string) []ustr.Ustr {
	out := make([]ustr.Ustr, len(s))
	for i, c := range s {
		out[i] = ustr.Ustr(c)
	}
	return out
}

func TestOpenRootIsInodeZero(t *testing.T) {
	fs := MkMemfs()
	ino, err := fs.Open(nil)
	if err != 0 || ino != vfs.RootInum {
		t.Fatalf("root open = (%d, %d)", ino, err)
	}
}

func TestAddFileAndRead(t *testing.T) {
	fs := MkMemfs()
	if err := fs.AddFile(ustr.Ustr("/a/b/c"), []byte("payload")); err != 0 {
		t.Fatalf("AddFile failed: %d", err)
	}
	ino, err := fs.Open(comps("a", "b", "c"))
	if err != 0 {
		t.Fatalf("open failed: %d", err)
	}
	buf := make([]byte, 16)
	n, err := fs.Read(ino, 0, buf)
	if err != 0 || string(buf[:n]) != "payload" {
		t.Fatalf("read = (%q, %d)", buf[:n], err)
	}
	// read past EOF returns 0 bytes.
	if n, err := fs.Read(ino, 100, buf); n != 0 || err != 0 {
		t.Fatalf("read past EOF = (%d, %d)", n, err)
	}
}

func TestOpenErrors(t *testing.T) {
	fs := MkMemfs()
	fs.AddFile(ustr.Ustr("/f"), []byte("x"))
	if _, err := fs.Open(comps("missing")); err != -defs.ENOENT {
		t.Fatalf("missing: err = %d", err)
	}
	if _, err := fs.Open(comps("f", "under-a-file")); err != -defs.ENOTDIR {
		t.Fatalf("descend through file: err = %d", err)
	}
}

func TestWriteExtendsFile(t *testing.T) {
	fs := MkMemfs()
	fs.AddFile(ustr.Ustr("/f"), nil)
	ino, _ := fs.Open(comps("f"))
	if n, err := fs.Write(ino, 4, []byte("tail")); n != 4 || err != 0 {
		t.Fatalf("write = (%d, %d)", n, err)
	}
	st := &stat.Stat_t{}
	fs.Stat(ino, st)
	if st.Size != 8 {
		t.Fatalf("size = %d, want 8 (4 hole + 4 data)", st.Size)
	}
}

func TestStatDirAndFile(t *testing.T) {
	fs := MkMemfs()
	fs.AddFile(ustr.Ustr("/d/f"), []byte("ab"))
	st := &stat.Stat_t{}

	dino, _ := fs.Open(comps("d"))
	fs.Stat(dino, st)
	if !st.IsDir() {
		t.Fatalf("directory mode = %#o", st.Mode)
	}

	fino, _ := fs.Open(comps("d", "f"))
	fs.Stat(fino, st)
	if st.IsDir() || st.Size != 2 {
		t.Fatalf("file stat = mode %#o size %d", st.Mode, st.Size)
	}
}

func TestImageRoundTrip(t *testing.T) {
	files := map[string][]byte{
		"/sbin/init":  []byte("init body"),
		"/etc/passwd": []byte("root:0:0"),
		"/empty":      nil,
	}
	img := BuildImage(files)
	disk := blockdev.MkMemDisk(img, "imgdisk")

	fs := MkMemfs()
	if err := fs.loadImage(blockdev.WholeDisk(disk)); err != 0 {
		t.Fatalf("loadImage failed: %d", err)
	}
	for p, want := range files {
		ino, err := fs.Open(splitPath(p))
		if err != 0 {
			t.Fatalf("open %s failed: %d", p, err)
		}
		buf := make([]byte, 64)
		n, _ := fs.Read(ino, 0, buf)
		if string(buf[:n]) != string(want) {
			t.Fatalf("%s = %q, want %q", p, buf[:n], want)
		}
	}
}

func splitPath(p string) []ustr.Ustr {
	var out []ustr.Ustr
	for _, c := range strings.Split(p, "/") {
		if c != "" {
			out = append(out, ustr.Ustr(c))
		}
	}
	return out
}

func TestImageBadMagicRejected(t *testing.T) {
	disk := blockdev.MkMemDisk(make([]byte, 2*blockdev.BSIZE), "badimg")
	fs := MkMemfs()
	if err := fs.loadImage(blockdev.WholeDisk(disk)); err != -defs.EINVAL {
		t.Fatalf("err = %d, want -EINVAL", err)
	}
}
