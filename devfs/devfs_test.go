package devfs

import (
	"bytes"
	"strings"
	"testing"

	"nucleus/defs"
	"nucleus/klog"
	"nucleus/stat"
	"nucleus/ustr"
	"nucleus/vfs"
)

func mk(t *testing.T) (*Devfs_t, *klog.Klog_t) {
	t.Helper()
	log := &klog.Klog_t{}
	log.Init(4096, klog.DEBUG)
	return MkDevfs(log), log
}

func open1(t *testing.T, d *Devfs_t, name string) vfs.Inum {
	t.Helper()
	ino, err := d.Open([]ustr.Ustr{ustr.Ustr(name)})
	if err != 0 {
		t.Fatalf("open %s failed: %d", name, err)
	}
	return ino
}

func TestStandardNodesExist(t *testing.T) {
	d, _ := mk(t)
	for _, name := range []string{"console", "null", "zero", "kmsg"} {
		open1(t, d, name)
	}
	if _, err := d.Open([]ustr.Ustr{ustr.Ustr("mouse")}); err != -defs.ENOENT {
		t.Fatalf("missing device: err = %d", err)
	}
}

func TestNullSwallowsAndEOFs(t *testing.T) {
	d, _ := mk(t)
	ino := open1(t, d, "null")
	if n, err := d.Write(ino, 0, []byte("gone")); n != 4 || err != 0 {
		t.Fatalf("write = (%d, %d)", n, err)
	}
	buf := make([]byte, 8)
	if n, err := d.Read(ino, 0, buf); n != 0 || err != 0 {
		t.Fatalf("read = (%d, %d), want EOF", n, err)
	}
}

func TestZeroFills(t *testing.T) {
	d, _ := mk(t)
	ino := open1(t, d, "zero")
	buf := []byte{1, 2, 3, 4}
	n, err := d.Read(ino, 0, buf)
	if n != 4 || err != 0 || !bytes.Equal(buf, make([]byte, 4)) {
		t.Fatalf("read = (%d, %d) buf %v", n, err, buf)
	}
}

func TestConsoleBuffersWrites(t *testing.T) {
	d, _ := mk(t)
	ino := open1(t, d, "console")
	d.Write(ino, 0, []byte("boot: "))
	d.Write(ino, 0, []byte("ok"))

	con := d.majors[defs.D_CONSOLE].(*console_t)
	if got := string(con.Drain()); got != "boot: ok" {
		t.Fatalf("console buffer = %q", got)
	}
}

func TestKmsgReadsKernelLog(t *testing.T) {
	d, log := mk(t)
	log.Infof("subsystem up")
	ino := open1(t, d, "kmsg")
	buf := make([]byte, 256)
	n, err := d.Read(ino, 0, buf)
	if err != 0 || !strings.Contains(string(buf[:n]), "subsystem up") {
		t.Fatalf("kmsg read = (%q, %d)", buf[:n], err)
	}
}

func TestStatModes(t *testing.T) {
	d, _ := mk(t)
	st := &stat.Stat_t{}
	if err := d.Stat(vfs.RootInum, st); err != 0 || !st.IsDir() {
		t.Fatalf("root stat = mode %#o err %d", st.Mode, err)
	}
	ino := open1(t, d, "null")
	if err := d.Stat(ino, st); err != 0 {
		t.Fatalf("stat failed: %d", err)
	}
	if st.Mode&0o170000 != stat.S_IFCHR {
		t.Fatalf("mode = %#o, want character device", st.Mode)
	}
	maj, _ := defs.Unmkdev(uint(st.Rdev))
	if maj != defs.D_DEVNULL {
		t.Fatalf("rdev major = %d", maj)
	}
}

func TestIoctlOnPlainDeviceIsENOTTY(t *testing.T) {
	d, _ := mk(t)
	ino := open1(t, d, "zero")
	if _, err := d.Ioctl(ino, 1, 2); err != -defs.ENOTTY {
		t.Fatalf("ioctl err = %d, want -ENOTTY", err)
	}
}
