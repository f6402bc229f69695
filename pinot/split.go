package pinot

// PinotColumnHandle names one column the query engine expects a scan to
// produce, with its Pinot data type.
type PinotColumnHandle struct {
	ColumnName string
	DataType   string
}

// PinotSplit is one unit of scan work: the server to read from and the
// segments assigned to it.
type PinotSplit struct {
	Host     string
	GrpcPort int
	Segments []string
}
