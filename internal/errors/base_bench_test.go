package errors

import (
	"errors"
	"testing"
)

var errWrapped = errors.New("wrapped error")

func BenchmarkWrap(b *testing.B) {
	b.Run("wrapf", func(b *testing.B) {
		for b.Loop() {
			err := Wrapf(errWrapped, "client %s asset %s", "c1", "USD")
			_ = err.Error()
		}
	})

	b.Run("is through two wraps", func(b *testing.B) {
		err := Wrap(Wrap(errWrapped, "inner"), "outer")
		for b.Loop() {
			if !Is(err, errWrapped) {
				b.Fatal("lost cause")
			}
		}
	})
}
