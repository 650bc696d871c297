package dbx

import (
	"strings"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// ColumnMapping maps a source DataTable column to a destination table column.
type ColumnMapping struct {
	Source      string
	Destination string
}

// ParseColumnMappings parses "src1:dst1,src2:dst2". A token without a colon maps a column to
// the same name. The empty string means no mapping.
func ParseColumnMappings(mapping string) ([]ColumnMapping, error) {
	if strings.TrimSpace(mapping) == "" {
		return nil, nil
	}

	var mappings []ColumnMapping
	for _, token := range strings.Split(mapping, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		parts := strings.Split(token, ":")
		switch len(parts) {
		case 1:
			mappings = append(mappings, ColumnMapping{Source: parts[0], Destination: parts[0]})
		case 2:
			src, dst := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if src == "" || dst == "" {
				return nil, errorx.NewConfigurationError("invalid column mapping '%s'", token)
			}

			mappings = append(mappings, ColumnMapping{Source: src, Destination: dst})
		default:
			return nil, errorx.NewConfigurationError("invalid column mapping '%s'", token)
		}
	}

	return mappings, nil
}

// ResolveColumnMappings returns, for each destination column, the index of its source column.
// No mappings means every source column keeps its name.
func ResolveColumnMappings(table *DataTable, mappings []ColumnMapping) (sourceIdx []int, destination []string, err error) {
	if len(mappings) == 0 {
		sourceIdx = make([]int, len(table.Columns))
		for i := range table.Columns {
			sourceIdx[i] = i
		}

		return sourceIdx, table.ColumnNames(), nil
	}

	for _, m := range mappings {
		idx := table.ColumnIndex(m.Source)
		if idx < 0 {
			return nil, nil, errorx.NewConfigurationError("column mapping source '%s' not found in table '%s'", m.Source, table.Name)
		}

		sourceIdx = append(sourceIdx, idx)
		destination = append(destination, m.Destination)
	}

	return sourceIdx, destination, nil
}

// ParseOutputFields splits an output-field descriptor into one list of integer field names per
// result set. For stored procedures the first token of each descriptor names the cursor and is
// skipped.
func ParseOutputFields(outputFields string, callType CallType) [][]string {
	if strings.TrimSpace(outputFields) == "" {
		return nil
	}

	var sets [][]string
	for _, descriptor := range strings.Split(outputFields, ",") {
		tokens := strings.Split(descriptor, ":")
		if callType == StoredProcedure && len(tokens) > 0 {
			tokens = tokens[1:]
		}

		var fields []string
		for _, tok := range tokens {
			if tok = strings.TrimSpace(tok); tok != "" {
				fields = append(fields, tok)
			}
		}

		sets = append(sets, fields)
	}

	return sets
}

// ApplyIntegerFields forces the fields named by outputFields to Int64 in each table of ds,
// matching descriptors to tables by position. Fields missing from a table are ignored.
func ApplyIntegerFields(ds *DataSet, outputFields string, callType CallType) error {
	if ds == nil {
		return nil
	}

	for i, fields := range ParseOutputFields(outputFields, callType) {
		table := ds.Table(i)
		if table == nil {
			break
		}

		for _, field := range fields {
			if table.ColumnIndex(field) < 0 {
				continue
			}

			if err := table.SetColumnType(field, ColInt64); err != nil {
				return errorx.NewDatabaseErrorWrapper(err, "error converting field '%s' of '%s' to Int64", field, table.Name)
			}
		}
	}

	return nil
}
