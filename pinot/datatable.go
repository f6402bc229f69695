package pinot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Pinot column data types carried in a DataSchema.
const (
	DataTypeInt       = "INT"
	DataTypeLong      = "LONG"
	DataTypeFloat     = "FLOAT"
	DataTypeDouble    = "DOUBLE"
	DataTypeBoolean   = "BOOLEAN"
	DataTypeString    = "STRING"
	DataTypeBytes     = "BYTES"
	DataTypeTimestamp = "TIMESTAMP"
)

const dataTableVersion = 1

// DataSchema describes the columns of a DataTable.
type DataSchema struct {
	ColumnNames     []string
	ColumnDataTypes []string
}

// DataTable is one decoded columnar result table returned by a server. Rows
// are row-major; every row carries one cell per schema column. Cell values
// are int32, int64, float32, float64, bool, string or []byte depending on
// the column data type.
type DataTable struct {
	Schema DataSchema
	Rows   [][]interface{}
}

// GetRowCount returns how many rows the table carries.
func (d *DataTable) GetRowCount() int {
	return len(d.Rows)
}

// GetColumnCount returns how many columns the table carries.
func (d *DataTable) GetColumnCount() int {
	return len(d.Schema.ColumnNames)
}

// GetColumnIndex returns the index of the named column, or -1.
func (d *DataTable) GetColumnIndex(name string) int {
	for i, columnName := range d.Schema.ColumnNames {
		if columnName == name {
			return i
		}
	}
	return -1
}

// Encode serializes the table into the versioned binary wire layout: a
// big-endian header (version, row count, column count), length-prefixed
// column names and types, then row-major cells.
func (d *DataTable) Encode() ([]byte, error) {
	if len(d.Schema.ColumnNames) != len(d.Schema.ColumnDataTypes) {
		return nil, fmt.Errorf("schema has %d names but %d types", len(d.Schema.ColumnNames), len(d.Schema.ColumnDataTypes))
	}
	var buf bytes.Buffer
	writeInt32(&buf, int32(dataTableVersion))
	writeInt32(&buf, int32(len(d.Rows)))
	writeInt32(&buf, int32(len(d.Schema.ColumnNames)))
	for _, name := range d.Schema.ColumnNames {
		writeString(&buf, name)
	}
	for _, columnType := range d.Schema.ColumnDataTypes {
		writeString(&buf, columnType)
	}
	for rowIdx, row := range d.Rows {
		if len(row) != len(d.Schema.ColumnNames) {
			return nil, fmt.Errorf("row %d has %d cells, schema has %d columns", rowIdx, len(row), len(d.Schema.ColumnNames))
		}
		for colIdx, cell := range row {
			if err := writeCell(&buf, d.Schema.ColumnDataTypes[colIdx], cell); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", rowIdx, d.Schema.ColumnNames[colIdx], err)
			}
		}
	}
	return buf.Bytes(), nil
}

// DecodeDataTable deserializes one binary payload into a DataTable. Any
// inconsistency between declared lengths and the buffer is a DecodeError.
func DecodeDataTable(payload []byte) (*DataTable, error) {
	reader := bytes.NewReader(payload)
	version, err := readInt32(reader)
	if err != nil {
		return nil, &DecodeError{Message: "truncated header", Err: err}
	}
	if version != dataTableVersion {
		return nil, &DecodeError{Message: fmt.Sprintf("unsupported data table version %d", version)}
	}
	rowCount, err := readInt32(reader)
	if err != nil {
		return nil, &DecodeError{Message: "truncated header", Err: err}
	}
	columnCount, err := readInt32(reader)
	if err != nil {
		return nil, &DecodeError{Message: "truncated header", Err: err}
	}
	if rowCount < 0 || columnCount < 0 {
		return nil, &DecodeError{Message: fmt.Sprintf("invalid table dimensions %dx%d", rowCount, columnCount)}
	}
	if rowCount > 0 && columnCount == 0 {
		return nil, &DecodeError{Message: fmt.Sprintf("%d rows declared with no columns", rowCount)}
	}
	// each column carries at least a name and a type length prefix
	if int64(columnCount)*8 > int64(reader.Len()) {
		return nil, &DecodeError{Message: fmt.Sprintf("%d columns declared with %d bytes remaining", columnCount, reader.Len())}
	}
	columnNames := make([]string, columnCount)
	for i := int32(0); i < columnCount; i++ {
		name, err := readString(reader)
		if err != nil {
			return nil, &DecodeError{Message: "invalid column name", Err: err}
		}
		columnNames[i] = name
	}
	columnTypes := make([]string, columnCount)
	for i := int32(0); i < columnCount; i++ {
		columnType, err := readString(reader)
		if err != nil {
			return nil, &DecodeError{Message: "invalid column type", Err: err}
		}
		if !isKnownDataType(columnType) {
			return nil, &DecodeError{Message: fmt.Sprintf("unknown column data type %q", columnType)}
		}
		columnTypes[i] = columnType
	}
	var minRowSize int64
	for _, columnType := range columnTypes {
		minRowSize += minCellSize(columnType)
	}
	if int64(rowCount)*minRowSize > int64(reader.Len()) {
		return nil, &DecodeError{Message: fmt.Sprintf("%d rows declared with %d bytes remaining", rowCount, reader.Len())}
	}
	rows := make([][]interface{}, rowCount)
	for rowIdx := int32(0); rowIdx < rowCount; rowIdx++ {
		row := make([]interface{}, columnCount)
		for colIdx := int32(0); colIdx < columnCount; colIdx++ {
			cell, err := readCell(reader, columnTypes[colIdx])
			if err != nil {
				return nil, &DecodeError{Message: fmt.Sprintf("row %d column %s", rowIdx, columnNames[colIdx]), Err: err}
			}
			row[colIdx] = cell
		}
		rows[rowIdx] = row
	}
	if reader.Len() != 0 {
		return nil, &DecodeError{Message: fmt.Sprintf("%d trailing bytes after last row", reader.Len())}
	}
	return &DataTable{
		Schema: DataSchema{
			ColumnNames:     columnNames,
			ColumnDataTypes: columnTypes,
		},
		Rows: rows,
	}, nil
}

// minCellSize is the fewest bytes one cell of the type can occupy on the
// wire; variable-width cells still carry a 4-byte length prefix.
func minCellSize(columnType string) int64 {
	switch columnType {
	case DataTypeBoolean:
		return 1
	case DataTypeLong, DataTypeDouble:
		return 8
	default:
		return 4
	}
}

func isKnownDataType(columnType string) bool {
	switch columnType {
	case DataTypeInt, DataTypeLong, DataTypeFloat, DataTypeDouble,
		DataTypeBoolean, DataTypeString, DataTypeBytes, DataTypeTimestamp:
		return true
	}
	return false
}

func writeInt32(buf *bytes.Buffer, value int32) {
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], uint32(value))
	buf.Write(scratch[:])
}

func writeString(buf *bytes.Buffer, value string) {
	writeInt32(buf, int32(len(value)))
	buf.WriteString(value)
}

func writeCell(buf *bytes.Buffer, columnType string, cell interface{}) error {
	switch columnType {
	case DataTypeInt:
		value, ok := cell.(int32)
		if !ok {
			return fmt.Errorf("expected int32 cell, got %T", cell)
		}
		writeInt32(buf, value)
	case DataTypeLong:
		value, ok := cell.(int64)
		if !ok {
			return fmt.Errorf("expected int64 cell, got %T", cell)
		}
		var scratch [8]byte
		binary.BigEndian.PutUint64(scratch[:], uint64(value))
		buf.Write(scratch[:])
	case DataTypeFloat:
		value, ok := cell.(float32)
		if !ok {
			return fmt.Errorf("expected float32 cell, got %T", cell)
		}
		if err := binary.Write(buf, binary.BigEndian, value); err != nil {
			return err
		}
	case DataTypeDouble:
		value, ok := cell.(float64)
		if !ok {
			return fmt.Errorf("expected float64 cell, got %T", cell)
		}
		if err := binary.Write(buf, binary.BigEndian, value); err != nil {
			return err
		}
	case DataTypeBoolean:
		value, ok := cell.(bool)
		if !ok {
			return fmt.Errorf("expected bool cell, got %T", cell)
		}
		if value {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case DataTypeString, DataTypeTimestamp:
		value, ok := cell.(string)
		if !ok {
			return fmt.Errorf("expected string cell, got %T", cell)
		}
		writeString(buf, value)
	case DataTypeBytes:
		value, ok := cell.([]byte)
		if !ok {
			return fmt.Errorf("expected []byte cell, got %T", cell)
		}
		writeInt32(buf, int32(len(value)))
		buf.Write(value)
	default:
		return fmt.Errorf("unknown column data type %q", columnType)
	}
	return nil
}

func readInt32(reader *bytes.Reader) (int32, error) {
	var value int32
	if err := binary.Read(reader, binary.BigEndian, &value); err != nil {
		return 0, err
	}
	return value, nil
}

func readString(reader *bytes.Reader) (string, error) {
	length, err := readInt32(reader)
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", fmt.Errorf("invalid string length: %d", length)
	}
	if int(length) > reader.Len() {
		return "", fmt.Errorf("string length %d exceeds %d remaining bytes", length, reader.Len())
	}
	value := make([]byte, length)
	if _, err := io.ReadFull(reader, value); err != nil {
		return "", err
	}
	return string(value), nil
}

func readCell(reader *bytes.Reader, columnType string) (interface{}, error) {
	switch columnType {
	case DataTypeInt:
		return readInt32(reader)
	case DataTypeLong:
		var value int64
		if err := binary.Read(reader, binary.BigEndian, &value); err != nil {
			return nil, err
		}
		return value, nil
	case DataTypeFloat:
		var value float32
		if err := binary.Read(reader, binary.BigEndian, &value); err != nil {
			return nil, err
		}
		return value, nil
	case DataTypeDouble:
		var value float64
		if err := binary.Read(reader, binary.BigEndian, &value); err != nil {
			return nil, err
		}
		return value, nil
	case DataTypeBoolean:
		b, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case DataTypeString, DataTypeTimestamp:
		return readString(reader)
	case DataTypeBytes:
		length, err := readInt32(reader)
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, fmt.Errorf("invalid bytes length: %d", length)
		}
		if int(length) > reader.Len() {
			return nil, fmt.Errorf("bytes length %d exceeds %d remaining bytes", length, reader.Len())
		}
		value := make([]byte, length)
		if _, err := io.ReadFull(reader, value); err != nil {
			return nil, err
		}
		return value, nil
	default:
		return nil, fmt.Errorf("unknown column data type %q", columnType)
	}
}
