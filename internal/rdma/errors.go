package rdma

import "errors"

var (
	errInvalidParameter = errors.New("rdma: invalid parameter")
	errBufferTooSmall   = errors.New("rdma: buffer too small")
	errInvalidState     = errors.New("rdma: invalid state for operation")
)
