package shm

import "unsafe"

// bigEndian decides where a sub-word cell sits inside its containing word.
var bigEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 0
}()

// BigEndian reports the host byte order.
func BigEndian() bool {
	return bigEndian
}
