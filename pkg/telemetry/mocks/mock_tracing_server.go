package mocks

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	otlpcollector "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
)

// spanLog counts export calls and remembers the names of the exported spans.
type spanLog struct {
	mu          sync.Mutex
	exportCount int
	spanNames   []string
}

func (l *spanLog) record(req *otlpcollector.ExportTraceServiceRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.exportCount++
	for _, rs := range req.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				l.spanNames = append(l.spanNames, span.GetName())
			}
		}
	}
}

func (l *spanLog) GetExportCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exportCount
}

func (l *spanLog) SpanNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.spanNames...)
}

// MockTracingServer is an OTLP/gRPC trace collector.
type MockTracingServer struct {
	otlpcollector.UnimplementedTraceServiceServer
	spanLog

	// Endpoint is the host:port the collector listens on.
	Endpoint string
}

func (s *MockTracingServer) Export(_ context.Context, req *otlpcollector.ExportTraceServiceRequest) (*otlpcollector.ExportTraceServiceResponse, error) {
	s.record(req)
	return &otlpcollector.ExportTraceServiceResponse{}, nil
}

// NewMockTracingServer starts a collector on a random local port. It is
// stopped when the test ends.
func NewMockTracingServer(t testing.TB) *MockTracingServer {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	mockServer := &MockTracingServer{Endpoint: lis.Addr().String()}
	server := grpc.NewServer()
	otlpcollector.RegisterTraceServiceServer(server, mockServer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(lis)
	}()

	t.Cleanup(func() {
		server.Stop()
		<-done
	})

	return mockServer
}

// MockHTTPTracingServer is an OTLP/HTTP trace collector accepting protobuf payloads.
type MockHTTPTracingServer struct {
	spanLog

	// Endpoint is the host:port the collector listens on.
	Endpoint string
}

func NewMockHTTPTracingServer(t testing.TB) *MockHTTPTracingServer {
	t.Helper()

	mockServer := &MockHTTPTracingServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/traces" {
			http.NotFound(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		req := &otlpcollector.ExportTraceServiceRequest{}
		if err := proto.Unmarshal(body, req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mockServer.record(req)

		resp, err := proto.Marshal(&otlpcollector.ExportTraceServiceResponse{})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(resp)
	}))
	t.Cleanup(srv.Close)

	mockServer.Endpoint = strings.TrimPrefix(srv.URL, "http://")
	return mockServer
}
