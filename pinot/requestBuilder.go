package pinot

import (
	"fmt"
	"strconv"

	proto "github.com/erlou96/presto/pinot/proto"
)

// Request metadata keys understood by Pinot servers. The forwarding keys are
// consumed by the gRPC proxy in front of the server, which is why their
// casing differs from the fixed keys.
const (
	metadataKeyRequestID       = "requestId"
	metadataKeyBrokerID        = "brokerId"
	metadataKeyEnableTrace     = "enableTrace"
	metadataKeyEnableStreaming = "enableStreaming"
	metadataKeyPayloadType     = "payloadType"
	metadataKeyForwardHost     = "FORWARD_HOST"
	metadataKeyForwardPort     = "FORWARD_PORT"

	payloadTypeSQL = "sql"
)

// serverRequestBuilder is what the streaming client needs from either
// builder variant.
type serverRequestBuilder interface {
	Build() (*proto.ServerRequest, error)
}

// GrpcRequestBuilder assembles a server-bound scan request. Builders are
// pure; Build may be called repeatedly and leaves the builder untouched.
type GrpcRequestBuilder struct {
	requestID       int64
	brokerID        string
	enableTrace     bool
	enableStreaming bool
	sql             string
	segments        []string
}

// SetRequestID sets the caller-assigned correlation id for this scan.
func (b *GrpcRequestBuilder) SetRequestID(requestID int64) *GrpcRequestBuilder {
	b.requestID = requestID
	return b
}

// SetBrokerID names the component issuing the request.
func (b *GrpcRequestBuilder) SetBrokerID(brokerID string) *GrpcRequestBuilder {
	b.brokerID = brokerID
	return b
}

// SetEnableTrace turns on server-side tracing for this scan.
func (b *GrpcRequestBuilder) SetEnableTrace(enableTrace bool) *GrpcRequestBuilder {
	b.enableTrace = enableTrace
	return b
}

// SetEnableStreaming asks the server to stream one response per data block.
func (b *GrpcRequestBuilder) SetEnableStreaming(enableStreaming bool) *GrpcRequestBuilder {
	b.enableStreaming = enableStreaming
	return b
}

// SetSql sets the scan query text.
func (b *GrpcRequestBuilder) SetSql(sql string) *GrpcRequestBuilder {
	b.sql = sql
	return b
}

// SetSegments sets the target segments. Order is significant for server-side
// planning and is preserved on the wire; duplicates are rejected at Build.
func (b *GrpcRequestBuilder) SetSegments(segments []string) *GrpcRequestBuilder {
	b.segments = segments
	return b
}

func (b *GrpcRequestBuilder) baseMetadata() map[string]string {
	return map[string]string{
		metadataKeyRequestID:       strconv.FormatInt(b.requestID, 10),
		metadataKeyBrokerID:        b.brokerID,
		metadataKeyEnableTrace:     strconv.FormatBool(b.enableTrace),
		metadataKeyEnableStreaming: strconv.FormatBool(b.enableStreaming),
		metadataKeyPayloadType:     payloadTypeSQL,
	}
}

func (b *GrpcRequestBuilder) validate() error {
	if b.sql == "" {
		return &ValidationError{Message: "sql is not set"}
	}
	if len(b.segments) == 0 {
		return &ValidationError{Message: "no segments to scan"}
	}
	seen := make(map[string]struct{}, len(b.segments))
	for _, segment := range b.segments {
		if _, ok := seen[segment]; ok {
			return &ValidationError{Message: fmt.Sprintf("duplicate segment %q", segment)}
		}
		seen[segment] = struct{}{}
	}
	return nil
}

// Build produces the immutable wire request.
func (b *GrpcRequestBuilder) Build() (*proto.ServerRequest, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &proto.ServerRequest{
		Metadata: b.baseMetadata(),
		Sql:      b.sql,
		Segments: append([]string(nil), b.segments...),
	}, nil
}

// ProxyGrpcRequestBuilder assembles a scan request routed through a
// forwarding proxy. When a host name and port are set, the request carries
// FORWARD_HOST/FORWARD_PORT metadata naming the actual server; callers may
// attach additional metadata entries for the proxy.
type ProxyGrpcRequestBuilder struct {
	GrpcRequestBuilder
	hostName      string
	port          int
	extraMetadata map[string]string
}

// SetHostName names the server the proxy should forward to.
func (b *ProxyGrpcRequestBuilder) SetHostName(hostName string) *ProxyGrpcRequestBuilder {
	b.hostName = hostName
	return b
}

// SetPort sets the forwarded server port.
func (b *ProxyGrpcRequestBuilder) SetPort(port int) *ProxyGrpcRequestBuilder {
	b.port = port
	return b
}

// SetRequestID sets the caller-assigned correlation id for this scan.
func (b *ProxyGrpcRequestBuilder) SetRequestID(requestID int64) *ProxyGrpcRequestBuilder {
	b.GrpcRequestBuilder.SetRequestID(requestID)
	return b
}

// SetBrokerID names the component issuing the request.
func (b *ProxyGrpcRequestBuilder) SetBrokerID(brokerID string) *ProxyGrpcRequestBuilder {
	b.GrpcRequestBuilder.SetBrokerID(brokerID)
	return b
}

// SetEnableTrace turns on server-side tracing for this scan.
func (b *ProxyGrpcRequestBuilder) SetEnableTrace(enableTrace bool) *ProxyGrpcRequestBuilder {
	b.GrpcRequestBuilder.SetEnableTrace(enableTrace)
	return b
}

// SetEnableStreaming asks the server to stream one response per data block.
func (b *ProxyGrpcRequestBuilder) SetEnableStreaming(enableStreaming bool) *ProxyGrpcRequestBuilder {
	b.GrpcRequestBuilder.SetEnableStreaming(enableStreaming)
	return b
}

// SetSql sets the scan query text.
func (b *ProxyGrpcRequestBuilder) SetSql(sql string) *ProxyGrpcRequestBuilder {
	b.GrpcRequestBuilder.SetSql(sql)
	return b
}

// SetSegments sets the target segments.
func (b *ProxyGrpcRequestBuilder) SetSegments(segments []string) *ProxyGrpcRequestBuilder {
	b.GrpcRequestBuilder.SetSegments(segments)
	return b
}

// AddExtraMetadata merges caller-supplied metadata entries into the request.
func (b *ProxyGrpcRequestBuilder) AddExtraMetadata(extraMetadata map[string]string) *ProxyGrpcRequestBuilder {
	if b.extraMetadata == nil {
		b.extraMetadata = map[string]string{}
	}
	for k, v := range extraMetadata {
		b.extraMetadata[k] = v
	}
	return b
}

// Build produces the immutable wire request. An extra metadata key that
// collides with a fixed or forwarding key is a ValidationError rather than a
// silent overwrite.
func (b *ProxyGrpcRequestBuilder) Build() (*proto.ServerRequest, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	metadata := b.baseMetadata()
	if b.hostName != "" && b.port > 0 {
		metadata[metadataKeyForwardHost] = b.hostName
		metadata[metadataKeyForwardPort] = strconv.Itoa(b.port)
	}
	for k, v := range b.extraMetadata {
		if _, exists := metadata[k]; exists {
			return nil, &ValidationError{Message: fmt.Sprintf("extra metadata key %q collides with a reserved key", k)}
		}
		metadata[k] = v
	}
	return &proto.ServerRequest{
		Metadata: metadata,
		Sql:      b.sql,
		Segments: append([]string(nil), b.segments...),
	}, nil
}
