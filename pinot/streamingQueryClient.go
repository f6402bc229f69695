package pinot

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	proto "github.com/erlou96/presto/pinot/proto"
)

//nolint:staticcheck // grpc.DialContext is still supported by gRPC for 1.x.
var grpcDialContext = grpc.DialContext

// ResponseIterator surfaces the responses of one streaming scan in arrival
// order. HasNext blocks while the next message is in flight. It is not safe
// for concurrent use: exactly one consumer drains one iterator.
type ResponseIterator interface {
	HasNext() bool
	Next() (*ServerResponse, error)
}

// PinotStreamingQueryClient opens streaming scans against Pinot servers,
// caching one connection per server address.
type PinotStreamingQueryClient struct {
	config *PinotConfig
	mu     sync.Mutex
	conns  map[string]*grpc.ClientConn
}

// NewPinotStreamingQueryClient builds a client for the given config.
func NewPinotStreamingQueryClient(config *PinotConfig) *PinotStreamingQueryClient {
	return &PinotStreamingQueryClient{
		config: config,
		conns:  map[string]*grpc.ClientConn{},
	}
}

// Submit builds the request and opens the streaming call to host:port. The
// context governs the whole stream: cancelling it aborts the call and
// releases the server side.
func (c *PinotStreamingQueryClient) Submit(ctx context.Context, host string, port int, builder serverRequestBuilder) (ResponseIterator, error) {
	request, err := builder.Build()
	if err != nil {
		return nil, err
	}
	address := normalizeGrpcAddress(fmt.Sprintf("%s:%d", host, port))
	conn, err := c.connFor(ctx, address)
	if err != nil {
		return nil, &TransportError{Address: address, Err: err}
	}
	stream, err := proto.NewPinotQueryServerClient(conn).Submit(ctx, request)
	if err != nil {
		return nil, &TransportError{Address: address, Err: err}
	}
	return &grpcResponseIterator{address: address, stream: stream}, nil
}

// Close releases all cached connections.
func (c *PinotStreamingQueryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for address, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection to %s: %w", address, err)
		}
		delete(c.conns, address)
	}
	return firstErr
}

func (c *PinotStreamingQueryClient) connFor(ctx context.Context, address string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[address]; ok {
		return conn, nil
	}
	dialOptions, err := buildServerDialOptions(c.config)
	if err != nil {
		return nil, err
	}
	//nolint:staticcheck // grpc.NewClient lacks context-based timeout semantics here.
	conn, err := grpcDialContext(ctx, address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial pinot server %s: %w", address, err)
	}
	c.conns[address] = conn
	return conn, nil
}

func normalizeGrpcAddress(address string) string {
	trimmed := strings.TrimPrefix(address, "grpc://")
	trimmed = strings.TrimPrefix(trimmed, "grpcs://")
	return trimmed
}

func buildServerDialOptions(config *PinotConfig) ([]grpc.DialOption, error) {
	var creds credentials.TransportCredentials
	if config.GrpcTLSConfig != nil && config.GrpcTLSConfig.Enabled {
		tlsConfig := &tls.Config{
			// #nosec G402 -- allow opt-in for environments with self-signed certs.
			InsecureSkipVerify: config.GrpcTLSConfig.InsecureSkipVerify,
			ServerName:         config.GrpcTLSConfig.ServerName,
		}
		if config.GrpcTLSConfig.CACertPath != "" {
			caBytes, err := os.ReadFile(config.GrpcTLSConfig.CACertPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read grpc CA cert: %w", err)
			}
			certPool := x509.NewCertPool()
			if !certPool.AppendCertsFromPEM(caBytes) {
				return nil, fmt.Errorf("failed to parse grpc CA cert")
			}
			tlsConfig.RootCAs = certPool
		}
		creds = credentials.NewTLS(tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}
	dialOptions := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
	}
	if config.StreamingServerGrpcMaxInboundMessageBytes > 0 {
		dialOptions = append(dialOptions, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(config.StreamingServerGrpcMaxInboundMessageBytes),
		))
	}
	return dialOptions, nil
}

// grpcResponseIterator pulls messages off a live Submit stream with a single
// message of lookahead. A transport failure is reported once, by the Next
// call that follows the failing HasNext.
type grpcResponseIterator struct {
	address string
	stream  proto.PinotQueryServer_SubmitClient
	pending *ServerResponse
	err     error
	done    bool
}

func (it *grpcResponseIterator) HasNext() bool {
	if it.pending != nil || it.err != nil {
		return true
	}
	if it.done {
		return false
	}
	response, err := it.stream.Recv()
	if err == io.EOF {
		it.done = true
		return false
	}
	if err != nil {
		it.done = true
		it.err = &TransportError{Address: it.address, Err: err}
		return true
	}
	it.pending = NewServerResponse(response)
	return true
}

func (it *grpcResponseIterator) Next() (*ServerResponse, error) {
	if it.pending == nil && it.err == nil && !it.HasNext() {
		return nil, fmt.Errorf("response iterator drained")
	}
	if it.err != nil {
		err := it.err
		it.err = nil
		return nil, err
	}
	response := it.pending
	it.pending = nil
	return response, nil
}
