// Command wrkrtestserver runs a local HTTP+gRPC server used by the seed
// end-to-end scenarios (spec §8 S1-S6): a fast /hello endpoint, a /slow
// endpoint with an artificial delay for timeout/overrun scenarios, and an
// EchoService for gRPC-unary coverage. Grounded on the teacher's
// scripts/test-server.go (HTTP handler shape) and
// original_source/wrkr-testserver/src/{lib,main,grpc}.rs (endpoint set,
// --bind flag, HTTP_URL=/GRPC_URL= stdout announcement).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	bindHTTP := flag.String("bind", "127.0.0.1:0", "address to bind the HTTP test server on")
	bindGRPC := flag.String("grpc-bind", "127.0.0.1:0", "address to bind the gRPC test server on")
	flag.Parse()

	httpListener, err := net.Listen("tcp", *bindHTTP)
	if err != nil {
		log.Fatalf("wrkrtestserver: listen %s: %v", *bindHTTP, err)
	}

	grpcServer, grpcListener, err := newGRPCTestServer(*bindGRPC)
	if err != nil {
		log.Fatalf("wrkrtestserver: grpc: %v", err)
	}

	mux := http.NewServeMux()
	registerHTTPHandlers(mux)

	httpSrv := &http.Server{Handler: mux}

	fmt.Printf("HTTP_URL=http://%s\n", httpListener.Addr())
	fmt.Printf("GRPC_URL=%s\n", grpcListener.Addr())

	go func() {
		if err := httpSrv.Serve(httpListener); err != nil && err != http.ErrServerClosed {
			log.Printf("wrkrtestserver: http server: %v", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Printf("wrkrtestserver: grpc server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(ctx)
	grpcServer.GracefulStop()
}

var requestsTotal int64

func registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/hello", handleHello)
	mux.HandleFunc("/plaintext", handleHello)
	mux.HandleFunc("/slow", handleSlow)
	mux.HandleFunc("/echo", handleEcho)
	mux.HandleFunc("/qp", handleQueryParam)
}

func handleHello(w http.ResponseWriter, r *http.Request) {
	requestsTotal++
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "Hello World!")
}

// handleSlow sleeps 50ms before responding, long enough for a 1ms client
// timeout to fire (S5) while still completing well inside a busy /slow
// scenario's iteration budget.
func handleSlow(w http.ResponseWriter, r *http.Request) {
	requestsTotal++
	time.Sleep(50 * time.Millisecond)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "slow")
}

func handleEcho(w http.ResponseWriter, r *http.Request) {
	requestsTotal++
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Write(body)
}

func handleQueryParam(w http.ResponseWriter, r *http.Request) {
	requestsTotal++
	if r.URL.Query().Get("foo") == "bar" {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusBadRequest)
}
