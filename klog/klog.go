// Package klog is the kernel's single ring-buffered log sink. Every
// subsystem writes through it instead of calling fmt.Printf directly; it
// backs the "log" syscall's debug passthrough (§4.8) and the devfs
// /dev/kmsg node (§4.10).
//
// Levels follow the original implementation's logger (supplemental,
// original_source/src/logger.rs): debug/log/warn/error, each tagged with
// a name so a /dev/kmsg reader can filter by severity.
package klog

import (
	"fmt"
	"time"

	"nucleus/circbuf"
)

// Level_t is the severity of a log record.
type Level_t int

const (
	DEBUG Level_t = iota
	INFO
	WARN
	FATAL
)

func (l Level_t) name() string {
	switch l {
	case DEBUG:
		return "dbg"
	case INFO:
		return "log"
	case WARN:
		return "warn"
	case FATAL:
		return "error"
	}
	return "?"
}

// Klog_t is the kernel's single log ring buffer instance.
type Klog_t struct {
	ring    circbuf.Circbuf_t
	minimum Level_t
}

// Init allocates the backing ring buffer and sets the minimum level that
// will actually be recorded (DEBUG records are dropped unless minimum is
// DEBUG, matching the original's LOG_DEBUG toggle).
func (k *Klog_t) Init(bufsz int, minimum Level_t) {
	k.ring.Init(bufsz)
	k.minimum = minimum
}

// Logf formats and appends one record. It never blocks and never fails:
// once the ring is full, oldest bytes are silently dropped.
func (k *Klog_t) Logf(lvl Level_t, format string, args ...interface{}) {
	if lvl < k.minimum {
		return
	}
	line := fmt.Sprintf("[%s] %s\n", lvl.name(), fmt.Sprintf(format, args...))
	k.ring.Write([]uint8(line))
}

// Debugf logs at DEBUG level.
func (k *Klog_t) Debugf(format string, args ...interface{}) { k.Logf(DEBUG, format, args...) }

// Infof logs at INFO level.
func (k *Klog_t) Infof(format string, args ...interface{}) { k.Logf(INFO, format, args...) }

// Warnf logs at WARN level.
func (k *Klog_t) Warnf(format string, args ...interface{}) { k.Logf(WARN, format, args...) }

// Fatalf logs at FATAL level. Callers still must panic themselves (§7:
// OOM and unrecoverable page-table corruption are fatal by design).
func (k *Klog_t) Fatalf(format string, args ...interface{}) { k.Logf(FATAL, format, args...) }

// Drain removes and returns every buffered byte, used by the "log"
// syscall's passthrough and the /dev/kmsg devfs node.
func (k *Klog_t) Drain() []uint8 {
	return k.ring.ReadAll()
}

// Timestamp is a small helper so callers can prefix a record with wall
// time without importing clock directly (keeps klog leaf-level).
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
