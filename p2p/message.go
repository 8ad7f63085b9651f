package p2p

import (
	"context"
	"errors"
	"io"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/mezonai/chainsync/exception"
	"github.com/mezonai/chainsync/jsonx"
)

var errEmptyMessage = errors.New("empty message")

func writeMessage(s network.Stream, v interface{}) error {
	return jsonx.NewEncoder(s).Encode(v)
}

func readMessage(s network.Stream, v interface{}) error {
	err := jsonx.NewDecoder(io.LimitReader(s, MaxMessageSize)).Decode(v)
	if errors.Is(err, io.EOF) {
		return errEmptyMessage
	}
	return err
}

// resetOnDone resets s when ctx ends first so blocked reads return. Call the
// returned func once the exchange is over.
func resetOnDone(ctx context.Context, s network.Stream) func() {
	done := make(chan struct{})
	exception.SafeGo("StreamWatchdog", func() {
		select {
		case <-ctx.Done():
			_ = s.Reset()
		case <-done:
		}
	})
	return func() { close(done) }
}
