//go:build !linux

package cycle

import "nexmotion-go/pkg/errors"

func pinThread(cpu int) error {
	return errors.Newf(errors.OperationDenied, "cpu affinity is not supported on this platform (cpu %d)", cpu)
}
