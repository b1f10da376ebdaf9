package allocator

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"
)

// DiagServer exposes a HeapManager's statistics over HTTP/3, the way the
// reference design's "separate diagnostic goroutines" (spec.md §6) are
// expected to observe the allocator without taking any lock the mutator
// path holds.
type DiagServer struct {
	pc    net.PacketConn
	srv   *http3.Server
	close func() error
}

// StartDiagServer binds a self-signed HTTP/3 endpoint serving GET /stats
// as JSON-encoded AllocatorStats. addr may end in ":0" for an ephemeral
// port; call Addr to discover the bound address.
func StartDiagServer(h *HeapManager, addr string) (*DiagServer, error) {
	tlsCfg, err := selfSignedTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("allocator: diag server tls: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.Stats())
	})

	s := &http3.Server{Addr: addr, TLSConfig: tlsCfg, Handler: mux}

	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("allocator: diag server listen: %w", err)
	}

	done := make(chan struct{})

	go func() {
		_ = s.Serve(pc)
		close(done)
	}()

	return &DiagServer{
		pc:  pc,
		srv: s,
		close: func() error {
			_ = s.Close()
			_ = pc.Close()

			select {
			case <-done:
			case <-time.After(time.Second):
			}

			return nil
		},
	}, nil
}

// Addr returns the bound local address, useful when the requested addr
// used an ephemeral port.
func (d *DiagServer) Addr() string {
	return d.pc.LocalAddr().String()
}

// Close shuts down the diagnostics server.
func (d *DiagServer) Close() error {
	return d.close()
}

// selfSignedTLSConfig builds an in-memory, self-signed TLS 1.3 cert for
// the diagnostics endpoint. There is no external CA to trust here: this
// server exists for an operator to curl with -k on the same host, not for
// public exposure.
func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "heapctl-diag"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * 365 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{"h3"},
	}, nil
}
