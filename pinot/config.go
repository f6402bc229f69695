package pinot

import "time"

// PinotConfig configures server-side streaming scans.
type PinotConfig struct {
	// StreamingServerGrpcMaxInboundMessageBytes caps the size of one inbound
	// streaming message. Zero keeps the gRPC default.
	StreamingServerGrpcMaxInboundMessageBytes int
	// UseStreamingForSegmentQueries asks servers to stream one response per
	// data block instead of a single terminal response.
	UseStreamingForSegmentQueries bool
	// GrpcTLSConfig secures server connections when set.
	GrpcTLSConfig *GrpcTLSConfig
	// RequestTimeout bounds one scan end to end. Zero means no deadline.
	RequestTimeout time.Duration
	// ProxyGrpcAddress routes scans through a forwarding proxy ("host:port").
	// When set, requests carry FORWARD_HOST/FORWARD_PORT metadata naming the
	// actual server and the call is dialed at the proxy.
	ProxyGrpcAddress string
	// ExtraGrpcMetadata adds request metadata entries to every scan.
	ExtraGrpcMetadata map[string]string
	// ZkConfig enables the Zookeeper-backed server selector.
	ZkConfig *ZookeeperConfig
}

// GrpcTLSConfig configures TLS for server gRPC connections.
type GrpcTLSConfig struct {
	Enabled            bool
	CACertPath         string
	ServerName         string
	InsecureSkipVerify bool
}

// ZookeeperConfig describes how to reach the Pinot cluster's Zookeeper.
type ZookeeperConfig struct {
	PathPrefix        string
	ZookeeperPath     []string
	SessionTimeoutSec int
}
