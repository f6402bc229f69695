package pinot

import (
	"fmt"
	"strings"

	proto "github.com/erlou96/presto/pinot/proto"
)

// Response metadata keys and values set by Pinot servers.
const (
	responseMetadataKeyType        = "responseType"
	responseMetadataKeyEncoding    = "encoding"
	responseMetadataKeyCompression = "compression"

	// ResponseTypeData marks a response whose payload is a serialized data
	// table.
	ResponseTypeData = "data"
	// ResponseTypeMetadata marks a trailing stats-only response with no
	// decodable payload.
	ResponseTypeMetadata = "metadata"

	payloadEncodingDataTable = "DATATABLE"
	payloadEncodingArrow     = "ARROW"
)

// ServerResponse wraps one message from the Submit stream. The payload stays
// opaque until GetDataTable is called, so metadata-only responses never pay
// decode cost and decode failures surface at the point of use.
type ServerResponse struct {
	response *proto.ServerResponse
}

// NewServerResponse wraps a wire response.
func NewServerResponse(response *proto.ServerResponse) *ServerResponse {
	return &ServerResponse{response: response}
}

// GetResponseType classifies the response without touching the payload.
func (r *ServerResponse) GetResponseType() string {
	if r.response == nil {
		return ""
	}
	return r.response.Metadata[responseMetadataKeyType]
}

// GetMetadata returns the response's metadata map.
func (r *ServerResponse) GetMetadata() map[string]string {
	if r.response == nil {
		return nil
	}
	return r.response.Metadata
}

// GetSerializedSize reports the encoded payload length. Metadata-only
// responses report zero.
func (r *ServerResponse) GetSerializedSize() int {
	if r.response == nil {
		return 0
	}
	return len(r.response.Payload)
}

// GetDataTable decompresses and decodes the payload into a typed table. The
// response's own metadata names the compression algorithm and payload
// encoding; absent entries mean an uncompressed DATATABLE payload.
func (r *ServerResponse) GetDataTable() (*DataTable, error) {
	if r.response == nil {
		return nil, &DecodeError{Message: "no response payload"}
	}
	payload, err := decompressPayload(r.response.Payload, r.response.Metadata[responseMetadataKeyCompression])
	if err != nil {
		return nil, &DecodeError{Message: "failed to decompress payload", Err: err}
	}
	encoding := r.response.Metadata[responseMetadataKeyEncoding]
	switch strings.ToUpper(encoding) {
	case payloadEncodingDataTable, "":
		return DecodeDataTable(payload)
	case payloadEncodingArrow:
		return decodeArrowTable(payload)
	default:
		return nil, &DecodeError{Message: fmt.Sprintf("unsupported payload encoding %q", encoding)}
	}
}
