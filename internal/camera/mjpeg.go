package camera

import (
	"context"
	"io"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/smartly/bridge/internal/metrics"
)

const (
	mjpegChunkSize      = 8 * 1024
	maxConcurrentStreams = 32
)

// StreamProxy forwards an upstream MJPEG body verbatim, bounding concurrent
// streams with a weighted semaphore.
type StreamProxy struct {
	sem    *semaphore.Weighted
	client *http.Client

	Metrics *metrics.Collector
}

func NewStreamProxy() *StreamProxy {
	return &StreamProxy{
		sem:    semaphore.NewWeighted(maxConcurrentStreams),
		client: &http.Client{}, // no timeout: streams are long-lived
	}
}

// Proxy reads only the body bytes of the upstream response (never its
// status line or headers) and forwards them unchanged in
// 8 KiB chunks, flushing after each one, until the client disconnects or
// the upstream ends. Chunked transfer and compression are both disabled
// and the connection is closed when the stream ends.
func (p *StreamProxy) Proxy(ctx context.Context, w http.ResponseWriter, upstreamURL string, headers map[string]string) error {
	if !p.sem.TryAcquire(1) {
		return errStreamLimitReached
	}
	defer p.sem.Release(1)
	if p.Metrics != nil {
		p.Metrics.MJPEGActiveStreams.Inc()
		defer p.Metrics.MJPEGActiveStreams.Dec()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstreamURL, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary=frame")
	w.Header().Set("Connection", "close")
	w.Header().Set("Transfer-Encoding", "identity")
	// Disabling compression: no Content-Encoding is ever set, and
	// http.ResponseWriter only gzips if a handler asks it to — leaving it
	// untouched here is enough to satisfy "compression disabled".
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, mjpegChunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
	}
}

var errStreamLimitReached = &StreamLimitError{}

// StreamLimitError means the concurrent-stream bound has been reached.
type StreamLimitError struct{}

func (e *StreamLimitError) Error() string { return "mjpeg stream limit reached" }
