package pinot

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// StreamingQueryClient is the seam between the page source and the network.
// PinotStreamingQueryClient is the production implementation; tests replay
// canned responses through the same contract.
type StreamingQueryClient interface {
	Submit(ctx context.Context, host string, port int, builder serverRequestBuilder) (ResponseIterator, error)
}

// Page is one columnar batch handed to the query engine. Columns[i] holds
// the values for the i-th requested column handle, top to bottom.
type Page struct {
	Columns  [][]interface{}
	RowCount int
}

// ServerScanStats accumulates the statistics reported by trailing metadata
// responses.
type ServerScanStats struct {
	NumDocsScanned int64
	TimeUsedMs     int64
}

// PinotSegmentStreamingPageSource drains one streaming scan into pages. It
// submits the request on the first NextPage call, decodes data responses,
// projects them onto the requested column handles, and folds metadata
// responses into scan statistics. One consumer per page source; none of its
// methods are safe for concurrent use.
type PinotSegmentStreamingPageSource struct {
	config        *PinotConfig
	client        StreamingQueryClient
	split         *PinotSplit
	columnHandles []PinotColumnHandle
	sql           string
	requestID     int64
	brokerID      string

	ctx    context.Context
	cancel context.CancelFunc

	responses ResponseIterator
	finished  bool
	closed    bool
	failure   error

	rowsRead       int64
	completedBytes int64
	readTimeNanos  int64
	serverStats    ServerScanStats
}

// NewPinotSegmentStreamingPageSource builds a page source for one split. The
// given context bounds the whole scan; Close cancels it.
func NewPinotSegmentStreamingPageSource(
	ctx context.Context,
	config *PinotConfig,
	client StreamingQueryClient,
	split *PinotSplit,
	columnHandles []PinotColumnHandle,
	sql string,
	requestID int64,
	brokerID string,
) *PinotSegmentStreamingPageSource {
	var cancel context.CancelFunc
	if config.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, config.RequestTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	return &PinotSegmentStreamingPageSource{
		config:        config,
		client:        client,
		split:         split,
		columnHandles: columnHandles,
		sql:           sql,
		requestID:     requestID,
		brokerID:      brokerID,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// NextPage returns the next batch, or (nil, nil) once the stream is
// exhausted. After a failure the same error is returned on every call; the
// page source never retries internally.
func (s *PinotSegmentStreamingPageSource) NextPage() (*Page, error) {
	if s.failure != nil {
		return nil, s.failure
	}
	if s.closed || s.finished {
		return nil, nil
	}
	start := time.Now()
	defer func() {
		s.readTimeNanos += time.Since(start).Nanoseconds()
	}()
	if s.responses == nil {
		responses, err := s.submit()
		if err != nil {
			return nil, s.fail(err)
		}
		s.responses = responses
	}
	for s.responses.HasNext() {
		response, err := s.responses.Next()
		if err != nil {
			return nil, s.fail(err)
		}
		switch response.GetResponseType() {
		case ResponseTypeMetadata:
			s.recordServerStats(response.GetMetadata())
		case ResponseTypeData:
			dataTable, err := response.GetDataTable()
			if err != nil {
				return nil, s.fail(err)
			}
			page, err := s.projectPage(dataTable)
			if err != nil {
				return nil, s.fail(err)
			}
			s.rowsRead += int64(page.RowCount)
			s.completedBytes += int64(response.GetSerializedSize())
			return page, nil
		default:
			return nil, s.fail(&DecodeError{Message: fmt.Sprintf("unknown response type %q", response.GetResponseType())})
		}
	}
	s.finished = true
	return nil, nil
}

// IsFinished reports whether the scan terminated, by exhaustion or failure.
func (s *PinotSegmentStreamingPageSource) IsFinished() bool {
	return s.finished || s.closed || s.failure != nil
}

// Close cancels the underlying stream. Safe to call in any state, any
// number of times.
func (s *PinotSegmentStreamingPageSource) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
}

// RowsRead returns the number of rows emitted so far.
func (s *PinotSegmentStreamingPageSource) RowsRead() int64 {
	return s.rowsRead
}

// CompletedBytes returns the payload bytes consumed so far.
func (s *PinotSegmentStreamingPageSource) CompletedBytes() int64 {
	return s.completedBytes
}

// ReadTimeNanos returns time spent inside NextPage.
func (s *PinotSegmentStreamingPageSource) ReadTimeNanos() int64 {
	return s.readTimeNanos
}

// GetServerStats returns the statistics reported by the server.
func (s *PinotSegmentStreamingPageSource) GetServerStats() ServerScanStats {
	return s.serverStats
}

func (s *PinotSegmentStreamingPageSource) submit() (ResponseIterator, error) {
	host := s.split.Host
	port := s.split.GrpcPort
	builder := &ProxyGrpcRequestBuilder{}
	builder.SetRequestID(s.requestID).
		SetBrokerID(s.brokerID).
		SetEnableStreaming(s.config.UseStreamingForSegmentQueries).
		SetSegments(s.split.Segments).
		SetSql(s.sql)
	if len(s.config.ExtraGrpcMetadata) > 0 {
		builder.AddExtraMetadata(s.config.ExtraGrpcMetadata)
	}
	if s.config.ProxyGrpcAddress != "" {
		proxyHost, proxyPort, err := splitGrpcAddress(s.config.ProxyGrpcAddress)
		if err != nil {
			return nil, err
		}
		builder.SetHostName(s.split.Host).SetPort(s.split.GrpcPort)
		host = proxyHost
		port = proxyPort
	}
	log.Debugf("Submitting scan %d to %s:%d for segments %v", s.requestID, host, port, s.split.Segments)
	return s.client.Submit(s.ctx, host, port, builder)
}

func (s *PinotSegmentStreamingPageSource) projectPage(dataTable *DataTable) (*Page, error) {
	columns := make([][]interface{}, len(s.columnHandles))
	for i, handle := range s.columnHandles {
		colIdx := dataTable.GetColumnIndex(handle.ColumnName)
		if colIdx < 0 {
			return nil, &ProjectionError{Column: handle.ColumnName}
		}
		column := make([]interface{}, len(dataTable.Rows))
		for rowIdx, row := range dataTable.Rows {
			column[rowIdx] = row[colIdx]
		}
		columns[i] = column
	}
	return &Page{
		Columns:  columns,
		RowCount: dataTable.GetRowCount(),
	}, nil
}

func (s *PinotSegmentStreamingPageSource) recordServerStats(metadata map[string]string) {
	if value, err := strconv.ParseInt(metadata["numDocsScanned"], 10, 64); err == nil {
		s.serverStats.NumDocsScanned += value
	}
	if value, err := strconv.ParseInt(metadata["timeUsedMs"], 10, 64); err == nil {
		s.serverStats.TimeUsedMs += value
	}
	log.Debugf("Scan %d server stats: %v", s.requestID, metadata)
}

func (s *PinotSegmentStreamingPageSource) fail(err error) error {
	log.Errorf("Scan %d on %s:%d failed, Error: %v\n", s.requestID, s.split.Host, s.split.GrpcPort, err)
	s.failure = err
	s.cancel()
	return err
}

func splitGrpcAddress(address string) (string, int, error) {
	host, portValue, err := net.SplitHostPort(normalizeGrpcAddress(address))
	if err != nil {
		return "", 0, &ValidationError{Message: fmt.Sprintf("invalid proxy address %q: %v", address, err)}
	}
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return "", 0, &ValidationError{Message: fmt.Sprintf("invalid proxy port %q", portValue)}
	}
	return host, port, nil
}
