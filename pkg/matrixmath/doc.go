// Package matrixmath exposes elementwise matrix arithmetic on a compute
// device.
//
// A Device is opened once, host buffer sets are allocated from it, and the
// Add, Sub and Mul operations write A <op> B into C:
//
//	dev, err := matrixmath.Open(matrixmath.Options{Backend: "auto"})
//	if err != nil {
//		return err
//	}
//	defer dev.Close()
//
//	bufs, err := dev.AllocHost(3)
//	if err != nil {
//		return err
//	}
//	defer bufs.Free()
//
//	copy(bufs.A, []float32{1, 2, 3})
//	copy(bufs.B, []float32{4, 5, 6})
//	if err := dev.Add(ctx, bufs); err != nil {
//		return err
//	}
//	// bufs.C == [5 7 9]
//
// Every HostBuffers set is mirrored by three device buffers owned by the set.
// Operations are synchronous: when they return nil the result is in C.
package matrixmath
