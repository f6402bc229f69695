package pinot

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/ipc"
	"github.com/apache/arrow/go/v15/arrow/memory"
)

// Pinot data types that share an Arrow representation (TIMESTAMP and STRING
// both map to arrow strings) are disambiguated through field metadata.
const arrowFieldTypeKey = "pinotDataType"

func arrowFieldType(columnType string) (arrow.DataType, error) {
	switch columnType {
	case DataTypeInt:
		return arrow.PrimitiveTypes.Int32, nil
	case DataTypeLong:
		return arrow.PrimitiveTypes.Int64, nil
	case DataTypeFloat:
		return arrow.PrimitiveTypes.Float32, nil
	case DataTypeDouble:
		return arrow.PrimitiveTypes.Float64, nil
	case DataTypeBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case DataTypeString, DataTypeTimestamp:
		return arrow.BinaryTypes.String, nil
	case DataTypeBytes:
		return arrow.BinaryTypes.Binary, nil
	default:
		return nil, fmt.Errorf("unknown column data type %q", columnType)
	}
}

// encodeArrowTable serializes the table as an Arrow IPC stream.
func encodeArrowTable(d *DataTable) ([]byte, error) {
	if len(d.Schema.ColumnNames) != len(d.Schema.ColumnDataTypes) {
		return nil, fmt.Errorf("schema has %d names but %d types", len(d.Schema.ColumnNames), len(d.Schema.ColumnDataTypes))
	}
	fields := make([]arrow.Field, len(d.Schema.ColumnNames))
	for i, name := range d.Schema.ColumnNames {
		fieldType, err := arrowFieldType(d.Schema.ColumnDataTypes[i])
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{
			Name:     name,
			Type:     fieldType,
			Metadata: arrow.NewMetadata([]string{arrowFieldTypeKey}, []string{d.Schema.ColumnDataTypes[i]}),
		}
	}
	schema := arrow.NewSchema(fields, nil)
	allocator := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(allocator, schema)
	defer builder.Release()

	for rowIdx, row := range d.Rows {
		if len(row) != len(fields) {
			return nil, fmt.Errorf("row %d has %d cells, schema has %d columns", rowIdx, len(row), len(fields))
		}
		for colIdx, cell := range row {
			if err := appendArrowValue(builder.Field(colIdx), d.Schema.ColumnDataTypes[colIdx], cell); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", rowIdx, d.Schema.ColumnNames[colIdx], err)
			}
		}
	}
	record := builder.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(allocator))
	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("failed to write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}

func appendArrowValue(fieldBuilder array.Builder, columnType string, cell interface{}) error {
	switch columnType {
	case DataTypeInt:
		value, ok := cell.(int32)
		if !ok {
			return fmt.Errorf("expected int32 cell, got %T", cell)
		}
		fieldBuilder.(*array.Int32Builder).Append(value)
	case DataTypeLong:
		value, ok := cell.(int64)
		if !ok {
			return fmt.Errorf("expected int64 cell, got %T", cell)
		}
		fieldBuilder.(*array.Int64Builder).Append(value)
	case DataTypeFloat:
		value, ok := cell.(float32)
		if !ok {
			return fmt.Errorf("expected float32 cell, got %T", cell)
		}
		fieldBuilder.(*array.Float32Builder).Append(value)
	case DataTypeDouble:
		value, ok := cell.(float64)
		if !ok {
			return fmt.Errorf("expected float64 cell, got %T", cell)
		}
		fieldBuilder.(*array.Float64Builder).Append(value)
	case DataTypeBoolean:
		value, ok := cell.(bool)
		if !ok {
			return fmt.Errorf("expected bool cell, got %T", cell)
		}
		fieldBuilder.(*array.BooleanBuilder).Append(value)
	case DataTypeString, DataTypeTimestamp:
		value, ok := cell.(string)
		if !ok {
			return fmt.Errorf("expected string cell, got %T", cell)
		}
		fieldBuilder.(*array.StringBuilder).Append(value)
	case DataTypeBytes:
		value, ok := cell.([]byte)
		if !ok {
			return fmt.Errorf("expected []byte cell, got %T", cell)
		}
		fieldBuilder.(*array.BinaryBuilder).Append(value)
	default:
		return fmt.Errorf("unknown column data type %q", columnType)
	}
	return nil
}

// decodeArrowTable deserializes an Arrow IPC stream back into a DataTable.
// The IPC stream is self-describing; the Pinot column type is recovered from
// field metadata, falling back to the Arrow type when absent.
func decodeArrowTable(payload []byte) (*DataTable, error) {
	reader, err := ipc.NewReader(bytes.NewReader(payload), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, &DecodeError{Message: "invalid arrow payload", Err: err}
	}
	defer reader.Release()

	schema := reader.Schema()
	columnNames := make([]string, schema.NumFields())
	columnTypes := make([]string, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		field := schema.Field(i)
		columnNames[i] = field.Name
		columnType, err := pinotTypeForField(field)
		if err != nil {
			return nil, &DecodeError{Message: fmt.Sprintf("column %s", field.Name), Err: err}
		}
		columnTypes[i] = columnType
	}

	rows := [][]interface{}{}
	for reader.Next() {
		record := reader.Record()
		numRows := int(record.NumRows())
		numCols := int(record.NumCols())
		if numCols != len(columnNames) {
			return nil, &DecodeError{Message: fmt.Sprintf("record has %d columns, schema has %d", numCols, len(columnNames))}
		}
		for rowIdx := 0; rowIdx < numRows; rowIdx++ {
			row := make([]interface{}, numCols)
			for colIdx := 0; colIdx < numCols; colIdx++ {
				value, err := readArrowValue(record.Column(colIdx), columnTypes[colIdx], rowIdx)
				if err != nil {
					return nil, &DecodeError{Message: fmt.Sprintf("row %d column %s", rowIdx, columnNames[colIdx]), Err: err}
				}
				row[colIdx] = value
			}
			rows = append(rows, row)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, &DecodeError{Message: "truncated arrow stream", Err: err}
	}
	return &DataTable{
		Schema: DataSchema{
			ColumnNames:     columnNames,
			ColumnDataTypes: columnTypes,
		},
		Rows: rows,
	}, nil
}

func pinotTypeForField(field arrow.Field) (string, error) {
	if idx := field.Metadata.FindKey(arrowFieldTypeKey); idx >= 0 {
		columnType := field.Metadata.Values()[idx]
		if !isKnownDataType(columnType) {
			return "", fmt.Errorf("unknown column data type %q", columnType)
		}
		return columnType, nil
	}
	switch field.Type.ID() {
	case arrow.INT32:
		return DataTypeInt, nil
	case arrow.INT64:
		return DataTypeLong, nil
	case arrow.FLOAT32:
		return DataTypeFloat, nil
	case arrow.FLOAT64:
		return DataTypeDouble, nil
	case arrow.BOOL:
		return DataTypeBoolean, nil
	case arrow.STRING:
		return DataTypeString, nil
	case arrow.BINARY:
		return DataTypeBytes, nil
	default:
		return "", fmt.Errorf("unsupported arrow type %s", field.Type)
	}
}

func readArrowValue(column arrow.Array, columnType string, rowIdx int) (interface{}, error) {
	if column.IsNull(rowIdx) {
		return nil, fmt.Errorf("null cell")
	}
	switch columnType {
	case DataTypeInt:
		intCol, ok := column.(*array.Int32)
		if !ok {
			return nil, fmt.Errorf("expected INT column, got %T", column)
		}
		return intCol.Value(rowIdx), nil
	case DataTypeLong:
		intCol, ok := column.(*array.Int64)
		if !ok {
			return nil, fmt.Errorf("expected LONG column, got %T", column)
		}
		return intCol.Value(rowIdx), nil
	case DataTypeFloat:
		floatCol, ok := column.(*array.Float32)
		if !ok {
			return nil, fmt.Errorf("expected FLOAT column, got %T", column)
		}
		return floatCol.Value(rowIdx), nil
	case DataTypeDouble:
		floatCol, ok := column.(*array.Float64)
		if !ok {
			return nil, fmt.Errorf("expected DOUBLE column, got %T", column)
		}
		return floatCol.Value(rowIdx), nil
	case DataTypeBoolean:
		boolCol, ok := column.(*array.Boolean)
		if !ok {
			return nil, fmt.Errorf("expected BOOLEAN column, got %T", column)
		}
		return boolCol.Value(rowIdx), nil
	case DataTypeString, DataTypeTimestamp:
		stringCol, ok := column.(*array.String)
		if !ok {
			return nil, fmt.Errorf("expected STRING column, got %T", column)
		}
		return stringCol.Value(rowIdx), nil
	case DataTypeBytes:
		binaryCol, ok := column.(*array.Binary)
		if !ok {
			return nil, fmt.Errorf("expected BYTES column, got %T", column)
		}
		return append([]byte{}, binaryCol.Value(rowIdx)...), nil
	default:
		return nil, fmt.Errorf("unknown column data type %q", columnType)
	}
}
