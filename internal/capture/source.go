package capture

import (
	"context"
	"io"
)

// Source produces raw signed 16-bit little-endian PCM from a microphone
// device. Start hands back a stream that ends when the device is closed.
type Source interface {
	Start(ctx context.Context) (io.ReadCloser, error)
}
