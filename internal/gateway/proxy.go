package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eurekahq/wsgate/internal/core"
	"github.com/eurekahq/wsgate/internal/lifecycle"
	"github.com/eurekahq/wsgate/internal/observability"
)

// TargetFunc builds the upstream base URL for a machine id. Injectable so
// tests can point the proxy at a local server.
type TargetFunc func(machineID string) *url.URL

// MachineTarget addresses a machine on the provider's internal network:
// http://<machine_id>.vm.<app>.internal:8080.
func MachineTarget(appName string) TargetFunc {
	return func(machineID string) *url.URL {
		return &url.URL{
			Scheme: "http",
			Host:   fmt.Sprintf("%s.vm.%s.internal:8080", machineID, appName),
		}
	}
}

// Proxy streams requests to workspace machines. Responses are forwarded
// chunk-by-chunk with no total-duration cap; only silence between chunks
// terminates a stream.
type Proxy struct {
	registry  *lifecycle.Registry
	target    TargetFunc
	client    *http.Client
	bodyLimit int64
	chunkIdle time.Duration
	log       *zap.Logger
}

func NewProxy(registry *lifecycle.Registry, target TargetFunc, bodyLimit int64, chunkIdle time.Duration, log *zap.Logger) *Proxy {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   60 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: 0, // SSE upstreams may hold the response open indefinitely
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   1024,
		DisableCompression:    true,
	}
	return &Proxy{
		registry:  registry,
		target:    target,
		client:    &http.Client{Transport: transport},
		bodyLimit: bodyLimit,
		chunkIdle: chunkIdle,
		log:       log,
	}
}

// Serve resolves the workspace machine and forwards the request to it.
func (p *Proxy) Serve(w http.ResponseWriter, r *http.Request, key core.WorkspaceKey) {
	log := observability.WorkspaceLogger(p.log, key)
	actor := p.registry.Get(key)

	machineID, err := actor.Ensure(r.Context())
	if err != nil {
		log.Warn("machine not ready for proxying", zap.Error(err))
		observability.ProxyRequestsTotal.WithLabelValues("provision_error").Inc()
		writeStartingPage(w)
		return
	}
	log = log.With(zap.String("machine_id", machineID))

	upstream := p.target(machineID)
	upstream.Path = r.URL.Path
	upstream.RawQuery = r.URL.RawQuery

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, p.bodyLimit))
	if err != nil {
		log.Warn("request body rejected", zap.Error(err))
		observability.ProxyRequestsTotal.WithLabelValues("body_too_large").Inc()
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	// Client disconnect cancels the upstream request; the watchdog below
	// reuses the same cancel for chunk-idle termination.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, upstream.String(), bytes.NewReader(body))
	if err != nil {
		log.Error("building upstream request failed", zap.Error(err))
		observability.ProxyRequestsTotal.WithLabelValues("internal_error").Inc()
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	for k, vv := range r.Header {
		if k == "Host" || k == "Connection" {
			continue
		}
		req.Header[k] = vv
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// A vanished DNS name or timeout means the machine was suspended
		// between Ensure and dial; ask the actor to restart it and let the
		// starting page's reload pick it up.
		if isTransientDial(err) {
			log.Info("machine unreachable, requesting wake", zap.Error(err))
			go func() {
				if wakeErr := actor.Wake(context.Background()); wakeErr != nil {
					log.Warn("wake failed", zap.Error(wakeErr))
				}
			}()
		} else {
			log.Warn("upstream request failed", zap.Error(err))
		}
		observability.ProxyRequestsTotal.WithLabelValues("upstream_error").Inc()
		writeStartingPage(w)
		return
	}
	defer resp.Body.Close()

	p.stream(w, resp, cancel, log)
}

// stream copies the upstream response downstream chunk-by-chunk. cancel
// aborts the upstream request; the idle watchdog uses it to terminate a
// silent stream.
func (p *Proxy) stream(w http.ResponseWriter, resp *http.Response, cancel context.CancelFunc, log *zap.Logger) {
	start := time.Now()
	defer func() {
		observability.ProxyStreamDuration.Observe(time.Since(start).Seconds())
	}()

	h := w.Header()
	for k := range h {
		delete(h, k)
	}
	for k, vv := range resp.Header {
		switch http.CanonicalHeaderKey(k) {
		case "Content-Length", "Transfer-Encoding", "Connection":
			// Framing is ours: the response goes out chunked.
			continue
		}
		h[strings.ToLower(k)] = []string{strings.Join(vv, ", ")}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)

	// The chunk-idle watchdog cancels the upstream request when the stream
	// goes silent; each chunk rewinds it. Keepalives are the upstream's job.
	watchdog := time.AfterFunc(p.chunkIdle, func() {
		log.Warn("stream idle timeout")
		cancel()
	})
	defer watchdog.Stop()

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			watchdog.Reset(p.chunkIdle)
			if _, werr := w.Write(buf[:n]); werr != nil {
				// Client went away mid-stream: stop forwarding silently.
				observability.ProxyRequestsTotal.WithLabelValues("client_disconnect").Inc()
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			observability.ProxyBytesStreamed.Add(float64(n))
		}
		if err == io.EOF {
			observability.ProxyRequestsTotal.WithLabelValues("ok").Inc()
			return
		}
		if err != nil {
			log.Debug("upstream stream ended", zap.Error(err))
			observability.ProxyRequestsTotal.WithLabelValues("stream_error").Inc()
			return
		}
	}
}

// isTransientDial reports whether the upstream failure looks like a machine
// that is suspended or still booting.
func isTransientDial(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
