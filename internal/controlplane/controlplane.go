// Package controlplane runs the "proxy" event loop spec.md §4.G names: a
// small RESP server answering INFO with the text last passed to SetInfo,
// run concurrently with the reader/writer worker loops, plus an [AMBIENT]
// HTTP /metrics endpoint exporting the seven stat_* counters as Prometheus
// gauges. The orchestrator fills the INFO text with stat_total_msgs_sent,
// stat_total_batches_sent and stat_total_errors only; the seven stat_*
// fields are not part of the INFO reply. The HTTP side is grounded on the
// teacher's internal/web.DashboardServer net/http server shape, generalized
// from an HTML dashboard to a scrape endpoint.
package controlplane

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rmtcore/internal/metrics"
)

// Server is the control-plane's dual TCP/HTTP front end.
type Server struct {
	Stats *metrics.Stats

	respAddr string
	httpAddr string

	mu       sync.RWMutex
	infoLine string
}

// New builds a Server. Either address may be empty to disable that
// listener.
func New(stats *metrics.Stats, respAddr, httpAddr string) *Server {
	return &Server{Stats: stats, respAddr: respAddr, httpAddr: httpAddr}
}

// SetInfo replaces the text returned by the RESP INFO responder. Called by
// the orchestrator each time metrics.Stats.Update runs.
func (s *Server) SetInfo(line string) {
	s.mu.Lock()
	s.infoLine = line
	s.mu.Unlock()
}

func (s *Server) info() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infoLine
}

// Run starts both listeners (whichever addresses are non-empty) and blocks
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if s.respAddr != "" {
		ln, err := net.Listen("tcp", s.respAddr)
		if err != nil {
			return fmt.Errorf("controlplane: resp listen %s: %w", s.respAddr, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- s.serveResp(ctx, ln)
		}()
	}

	if s.httpAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.Stats.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: s.httpAddr, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- srv.ListenAndServe()
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
	}

	go func() {
		wg.Wait()
		close(errCh)
	}()

	for err := range errCh {
		if err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

// serveResp accepts connections and answers a bare "INFO" RESP command
// with the current stats line as a bulk string, PING with +PONG and QUIT
// with +OK (then closes the connection); anything else gets a RESP error. This is intentionally minimal — the control plane is a
// stats probe, not a general RESP endpoint.
func (s *Server) serveResp(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		if strings.HasPrefix(cmd, "*") {
			// Inline clients may send a RESP array framing "INFO"; skip the
			// array/bulk header lines and read the actual command word.
			for strings.HasPrefix(cmd, "*") || strings.HasPrefix(cmd, "$") {
				line, err = r.ReadString('\n')
				if err != nil {
					return
				}
				cmd = strings.ToUpper(strings.TrimSpace(line))
			}
		}
		switch cmd {
		case "INFO":
			body := s.info()
			fmt.Fprintf(conn, "$%d\r\n%s\r\n", len(body), body)
		case "PING":
			conn.Write([]byte("+PONG\r\n"))
		case "QUIT":
			conn.Write([]byte("+OK\r\n"))
			return
		case "":
			continue
		default:
			fmt.Fprintf(conn, "-ERR unknown command '%s'\r\n", cmd)
		}
	}
}
