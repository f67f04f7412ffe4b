package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Source is an abstract push channel of job batches.
//
// Subscribe starts delivery and returns a cancel function. After cancel
// returns, no further batches are delivered, even if one was already in
// flight from the transport.
type Source interface {
	Subscribe(onBatch func(Batch)) (cancel func(), err error)
}

// Opener opens the raw stream transport. *apiclient.Client satisfies
// this via OpenStream.
type Opener interface {
	OpenStream(ctx context.Context) (io.ReadCloser, error)
}

// ReaderSource adapts a JSONL transport into a Source.
//
// Decode failures on individual records are logged and dropped; the
// subscription survives them. The subscription ends silently when the
// transport reaches EOF or the subscriber cancels.
type ReaderSource struct {
	Open   Opener
	Logger *zap.Logger

	// OnEnd, when set, runs after the pump goroutine exits, whether
	// from cancel, EOF, or a transport error. Reconnect loops use it
	// to learn the subscription is over.
	OnEnd func()
}

func (rs *ReaderSource) logger() *zap.Logger {
	if rs.Logger != nil {
		return rs.Logger
	}
	return zap.NewNop()
}

// Subscribe opens the transport and pumps batches to onBatch from a
// background goroutine until cancel is called or the stream ends.
func (rs *ReaderSource) Subscribe(onBatch func(Batch)) (func(), error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	body, err := rs.Open.OpenStream(ctx)
	if err != nil {
		cancelCtx()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if rs.OnEnd != nil {
			defer rs.OnEnd()
		}
		dec := NewDecoder(body)
		log := rs.logger()
		for {
			b, err := dec.NextBatch()
			if err != nil {
				if IsDecodeError(err) {
					log.Warn("dropping undecodable stream record", zap.Error(err))
					continue
				}
				if !errors.Is(err, io.EOF) && ctx.Err() == nil && !isClosedConn(err) {
					log.Warn("job stream ended", zap.Error(err))
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			onBatch(b)
		}
	}()

	cancel := func() {
		cancelCtx()
		_ = body.Close()
		wg.Wait()
	}
	return cancel, nil
}

// isClosedConn reports whether the transport was torn down on purpose.
// Other transport failures, timeouts included, still warrant the
// stream-ended warning.
func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
