// Package proto carries the Pinot server query protocol: a single
// PinotQueryServer service whose Submit call streams responses back for one
// scan request. The two messages are flat enough that the wire layer is
// hand-encoded with protowire instead of checked-in protoc output.
package proto

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// PinotQueryServerSubmitMethod is the full gRPC method name used by Pinot
// servers for streaming segment scans.
const PinotQueryServerSubmitMethod = "/org.apache.pinot.common.proto.PinotQueryServer/Submit"

// ServerRequest is one segment scan request bound for a Pinot server.
type ServerRequest struct {
	Metadata map[string]string
	Sql      string
	Segments []string
	Payload  []byte
}

// ServerResponse is one message received on the Submit stream. The payload
// is opaque at this layer; the metadata map classifies and describes it.
type ServerResponse struct {
	Metadata map[string]string
	Payload  []byte
}

const (
	requestMetadataField = 1
	requestSqlField      = 2
	requestSegmentsField = 3
	requestPayloadField  = 4

	responseMetadataField = 1
	responsePayloadField  = 2

	mapEntryKeyField   = 1
	mapEntryValueField = 2
)

func (m *ServerRequest) marshal() []byte {
	var b []byte
	for k, v := range m.Metadata {
		b = appendMapEntry(b, requestMetadataField, k, v)
	}
	if m.Sql != "" {
		b = protowire.AppendTag(b, requestSqlField, protowire.BytesType)
		b = protowire.AppendString(b, m.Sql)
	}
	for _, segment := range m.Segments {
		b = protowire.AppendTag(b, requestSegmentsField, protowire.BytesType)
		b = protowire.AppendString(b, segment)
	}
	if len(m.Payload) > 0 {
		b = protowire.AppendTag(b, requestPayloadField, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Payload)
	}
	return b
}

func (m *ServerRequest) unmarshal(data []byte) error {
	*m = ServerRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == requestMetadataField && typ == protowire.BytesType:
			entry, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			key, value, err := consumeMapEntry(entry)
			if err != nil {
				return err
			}
			if m.Metadata == nil {
				m.Metadata = map[string]string{}
			}
			m.Metadata[key] = value
		case num == requestSqlField && typ == protowire.BytesType:
			value, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			m.Sql = value
		case num == requestSegmentsField && typ == protowire.BytesType:
			value, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			m.Segments = append(m.Segments, value)
		case num == requestPayloadField && typ == protowire.BytesType:
			value, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			m.Payload = append([]byte(nil), value...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *ServerResponse) marshal() []byte {
	var b []byte
	for k, v := range m.Metadata {
		b = appendMapEntry(b, responseMetadataField, k, v)
	}
	if len(m.Payload) > 0 {
		b = protowire.AppendTag(b, responsePayloadField, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Payload)
	}
	return b
}

func (m *ServerResponse) unmarshal(data []byte) error {
	*m = ServerResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == responseMetadataField && typ == protowire.BytesType:
			entry, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			key, value, err := consumeMapEntry(entry)
			if err != nil {
				return err
			}
			if m.Metadata == nil {
				m.Metadata = map[string]string{}
			}
			m.Metadata[key] = value
		case num == responsePayloadField && typ == protowire.BytesType:
			value, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			m.Payload = append([]byte(nil), value...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func appendMapEntry(b []byte, num protowire.Number, key string, value string) []byte {
	entry := protowire.AppendTag(nil, mapEntryKeyField, protowire.BytesType)
	entry = protowire.AppendString(entry, key)
	entry = protowire.AppendTag(entry, mapEntryValueField, protowire.BytesType)
	entry = protowire.AppendString(entry, value)
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, entry)
}

func consumeMapEntry(entry []byte) (string, string, error) {
	var key, value string
	for len(entry) > 0 {
		num, typ, n := protowire.ConsumeTag(entry)
		if n < 0 {
			return "", "", protowire.ParseError(n)
		}
		entry = entry[n:]
		switch {
		case num == mapEntryKeyField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(entry)
			if n < 0 {
				return "", "", protowire.ParseError(n)
			}
			entry = entry[n:]
			key = v
		case num == mapEntryValueField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(entry)
			if n < 0 {
				return "", "", protowire.ParseError(n)
			}
			entry = entry[n:]
			value = v
		default:
			n := protowire.ConsumeFieldValue(num, typ, entry)
			if n < 0 {
				return "", "", protowire.ParseError(n)
			}
			entry = entry[n:]
		}
	}
	return key, value, nil
}

// Codec is a gRPC codec restricted to the two server protocol messages. Its
// name is "proto" so the negotiated content subtype matches what real Pinot
// servers expect. It is forced per call rather than registered globally.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *ServerRequest:
		return m.marshal(), nil
	case *ServerResponse:
		return m.marshal(), nil
	default:
		return nil, fmt.Errorf("proto codec cannot marshal %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *ServerRequest:
		return m.unmarshal(data)
	case *ServerResponse:
		return m.unmarshal(data)
	default:
		return fmt.Errorf("proto codec cannot unmarshal %T", v)
	}
}

func (Codec) Name() string {
	return "proto"
}

// PinotQueryServerClient is the client API for the PinotQueryServer service.
type PinotQueryServerClient interface {
	Submit(ctx context.Context, in *ServerRequest, opts ...grpc.CallOption) (PinotQueryServer_SubmitClient, error)
}

// PinotQueryServer_SubmitClient receives the streamed responses for one
// submitted request.
type PinotQueryServer_SubmitClient interface {
	Recv() (*ServerResponse, error)
	grpc.ClientStream
}

type pinotQueryServerClient struct {
	cc grpc.ClientConnInterface
}

// NewPinotQueryServerClient builds a client over an established connection.
func NewPinotQueryServerClient(cc grpc.ClientConnInterface) PinotQueryServerClient {
	return &pinotQueryServerClient{cc: cc}
}

var submitStreamDesc = grpc.StreamDesc{
	StreamName:    "Submit",
	ServerStreams: true,
}

func (c *pinotQueryServerClient) Submit(ctx context.Context, in *ServerRequest, opts ...grpc.CallOption) (PinotQueryServer_SubmitClient, error) {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	stream, err := c.cc.NewStream(ctx, &submitStreamDesc, PinotQueryServerSubmitMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &pinotQueryServerSubmitClient{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type pinotQueryServerSubmitClient struct {
	grpc.ClientStream
}

func (x *pinotQueryServerSubmitClient) Recv() (*ServerResponse, error) {
	m := new(ServerResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// PinotQueryServerServer is the server API, implemented by test servers and
// by anything standing in for a Pinot server.
type PinotQueryServerServer interface {
	Submit(*ServerRequest, PinotQueryServer_SubmitServer) error
}

// PinotQueryServer_SubmitServer sends streamed responses for one request.
type PinotQueryServer_SubmitServer interface {
	Send(*ServerResponse) error
	grpc.ServerStream
}

// UnimplementedPinotQueryServerServer may be embedded for forward
// compatibility.
type UnimplementedPinotQueryServerServer struct{}

func (UnimplementedPinotQueryServerServer) Submit(*ServerRequest, PinotQueryServer_SubmitServer) error {
	return fmt.Errorf("method Submit not implemented")
}

type pinotQueryServerSubmitServer struct {
	grpc.ServerStream
}

func (x *pinotQueryServerSubmitServer) Send(m *ServerResponse) error {
	return x.ServerStream.SendMsg(m)
}

func submitHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(ServerRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(PinotQueryServerServer).Submit(m, &pinotQueryServerSubmitServer{ServerStream: stream})
}

// PinotQueryServerServiceDesc is the service descriptor for registration.
// Servers built against it must force the package Codec, e.g.
// grpc.NewServer(grpc.ForceServerCodec(proto.Codec{})).
var PinotQueryServerServiceDesc = grpc.ServiceDesc{
	ServiceName: "org.apache.pinot.common.proto.PinotQueryServer",
	HandlerType: (*PinotQueryServerServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Submit",
			Handler:       submitHandler,
			ServerStreams: true,
		},
	},
	Metadata: "pinot/proto/server.proto",
}

// RegisterPinotQueryServerServer registers srv on s.
func RegisterPinotQueryServerServer(s grpc.ServiceRegistrar, srv PinotQueryServerServer) {
	s.RegisterService(&PinotQueryServerServiceDesc, srv)
}
