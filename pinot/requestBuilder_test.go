package pinot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyGrpcRequestWithForwarding(t *testing.T) {
	request, err := (&ProxyGrpcRequestBuilder{}).
		SetHostName("localhost").
		SetPort(8124).
		SetSegments([]string{"segment1"}).
		SetEnableStreaming(true).
		SetRequestID(121).
		SetBrokerID("presto-coordinator-grpc").
		AddExtraMetadata(map[string]string{"k1": "v1", "k2": "v2"}).
		SetSql("SELECT * FROM myTable").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM myTable", request.Sql)
	assert.Equal(t, []string{"segment1"}, request.Segments)
	assert.Equal(t, 9, len(request.Metadata))
	assert.Equal(t, "v1", request.Metadata["k1"])
	assert.Equal(t, "v2", request.Metadata["k2"])
	assert.Equal(t, "localhost", request.Metadata["FORWARD_HOST"])
	assert.Equal(t, "8124", request.Metadata["FORWARD_PORT"])
	assert.Equal(t, "121", request.Metadata["requestId"])
	assert.Equal(t, "presto-coordinator-grpc", request.Metadata["brokerId"])
	assert.Equal(t, "false", request.Metadata["enableTrace"])
	assert.Equal(t, "true", request.Metadata["enableStreaming"])
	assert.Equal(t, "sql", request.Metadata["payloadType"])
}

func TestProxyGrpcRequestWithoutForwarding(t *testing.T) {
	request, err := (&ProxyGrpcRequestBuilder{}).
		SetSegments([]string{"segment1"}).
		SetEnableStreaming(true).
		SetRequestID(121).
		SetBrokerID("presto-coordinator-grpc").
		AddExtraMetadata(map[string]string{"k1": "v1", "k2": "v2"}).
		SetSql("SELECT * FROM myTable").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM myTable", request.Sql)
	assert.Equal(t, []string{"segment1"}, request.Segments)
	assert.Equal(t, 7, len(request.Metadata))
	assert.NotContains(t, request.Metadata, "FORWARD_HOST")
	assert.NotContains(t, request.Metadata, "FORWARD_PORT")
	assert.Equal(t, "121", request.Metadata["requestId"])
	assert.Equal(t, "presto-coordinator-grpc", request.Metadata["brokerId"])
	assert.Equal(t, "false", request.Metadata["enableTrace"])
	assert.Equal(t, "true", request.Metadata["enableStreaming"])
	assert.Equal(t, "sql", request.Metadata["payloadType"])
}

func TestGrpcRequest(t *testing.T) {
	request, err := (&GrpcRequestBuilder{}).
		SetSegments([]string{"segment1"}).
		SetEnableStreaming(true).
		SetRequestID(121).
		SetBrokerID("presto-coordinator-grpc").
		SetSql("SELECT * FROM myTable").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM myTable", request.Sql)
	assert.Equal(t, []string{"segment1"}, request.Segments)
	assert.Equal(t, 5, len(request.Metadata))
	assert.Equal(t, "121", request.Metadata["requestId"])
	assert.Equal(t, "presto-coordinator-grpc", request.Metadata["brokerId"])
	assert.Equal(t, "false", request.Metadata["enableTrace"])
	assert.Equal(t, "true", request.Metadata["enableStreaming"])
	assert.Equal(t, "sql", request.Metadata["payloadType"])
}

func TestGrpcRequestEnableTrace(t *testing.T) {
	request, err := (&GrpcRequestBuilder{}).
		SetSegments([]string{"segment1"}).
		SetEnableTrace(true).
		SetSql("SELECT * FROM myTable").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "true", request.Metadata["enableTrace"])
	assert.Equal(t, "false", request.Metadata["enableStreaming"])
}

func TestGrpcRequestValidation(t *testing.T) {
	var validationErr *ValidationError

	_, err := (&GrpcRequestBuilder{}).SetSegments([]string{"segment1"}).Build()
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr))

	_, err = (&GrpcRequestBuilder{}).SetSql("SELECT 1").Build()
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr))

	_, err = (&ProxyGrpcRequestBuilder{}).SetSql("SELECT 1").Build()
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr))
}

func TestGrpcRequestRejectsDuplicateSegments(t *testing.T) {
	_, err := (&GrpcRequestBuilder{}).
		SetSegments([]string{"segment1", "segment2", "segment1"}).
		SetSql("SELECT * FROM myTable").
		Build()
	require.Error(t, err)
	var validationErr *ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Contains(t, err.Error(), "segment1")

	_, err = (&ProxyGrpcRequestBuilder{}).
		SetSegments([]string{"segment1", "segment1"}).
		SetSql("SELECT * FROM myTable").
		Build()
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr))
}

func TestProxyGrpcRequestExtraMetadataCollision(t *testing.T) {
	_, err := (&ProxyGrpcRequestBuilder{}).
		SetSegments([]string{"segment1"}).
		AddExtraMetadata(map[string]string{"requestId": "7"}).
		SetSql("SELECT * FROM myTable").
		Build()
	require.Error(t, err)
	var validationErr *ValidationError
	assert.True(t, errors.As(err, &validationErr))

	_, err = (&ProxyGrpcRequestBuilder{}).
		SetHostName("localhost").
		SetPort(8124).
		SetSegments([]string{"segment1"}).
		AddExtraMetadata(map[string]string{"FORWARD_HOST": "elsewhere"}).
		SetSql("SELECT * FROM myTable").
		Build()
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr))
}

func TestProxyGrpcRequestPortWithoutHost(t *testing.T) {
	request, err := (&ProxyGrpcRequestBuilder{}).
		SetPort(8124).
		SetSegments([]string{"segment1"}).
		SetSql("SELECT * FROM myTable").
		Build()
	require.NoError(t, err)
	assert.Equal(t, 5, len(request.Metadata))
	assert.NotContains(t, request.Metadata, "FORWARD_PORT")
}

func TestBuildIsRepeatable(t *testing.T) {
	builder := (&GrpcRequestBuilder{}).
		SetSegments([]string{"segment1", "segment2"}).
		SetSql("SELECT * FROM myTable")
	first, err := builder.Build()
	require.NoError(t, err)
	second, err := builder.Build()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// mutating the returned request must not leak into later builds
	first.Segments[0] = "mutated"
	third, err := builder.Build()
	require.NoError(t, err)
	assert.Equal(t, "segment1", third.Segments[0])
}
