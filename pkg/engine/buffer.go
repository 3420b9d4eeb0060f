package engine

import (
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
)

// Buffer is a byte region holding tensor data. It may be device resident,
// in which case the CPU must not touch it until CPU access is allowed again.
//
// A Buffer is either allocated by a Tensor for itself, or created by the
// caller and attached to a Tensor with Tensor.SetBuffer. It is attached to at
// most one Tensor at a time.
type Buffer struct {
	data      []byte
	cpuAccess bool

	// attached is the tensor currently using this buffer.
	attached *Tensor
}

// NewBuffer allocates a CPU-accessible buffer of size bytes.
func NewBuffer(size int) *Buffer {
	return &Buffer{
		data:      make([]byte, size),
		cpuAccess: true,
	}
}

// WrapBuffer returns a buffer aliasing data. The caller keeps ownership of data
// and must keep it alive for as long as the buffer is attached.
func WrapBuffer(data []byte) *Buffer {
	return &Buffer{
		data:      data,
		cpuAccess: true,
	}
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int { return len(b.data) }

// AllowCPUAccess enables or disables direct CPU reads and writes of the buffer data.
// Revoking access invalidates every view exported from the attached tensor.
func (b *Buffer) AllowCPUAccess(allow bool) bool {
	if !allow && b.cpuAccess && b.attached != nil {
		b.attached.touch()
	}
	b.cpuAccess = allow
	return true
}

// CPUAccess reports whether the CPU may read or write the buffer data.
func (b *Buffer) CPUAccess() bool { return b.cpuAccess }

// Attached reports whether the buffer is currently bound to a tensor.
func (b *Buffer) Attached() bool { return b.attached != nil }

// Bytes returns the buffer data.
func (b *Buffer) Bytes() ([]byte, error) {
	if !b.cpuAccess {
		return nil, errdefs.New(errdefs.InvalidState, "buffer is not CPU accessible")
	}
	return b.data, nil
}
