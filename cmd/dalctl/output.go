package main

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

type tableOutput struct {
	Name    string          `json:"name"`
	Columns []columnOutput  `json:"columns"`
	Rows    json.RawMessage `json:"rows"`
}

type columnOutput struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type outputParameter struct {
	Name  string    `json:"name"`
	Value dbx.Value `json:"value"`
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}

func tableJSON(t *dbx.DataTable) (tableOutput, error) {
	out := tableOutput{Name: t.Name}
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, columnOutput{Name: c.Name, Type: c.Type.String()})
	}

	rows, err := t.ToJSON()
	if err != nil {
		return out, err
	}

	out.Rows = rows

	return out, nil
}

// writeTables renders tables as JSON, or as XML documents when asXML is set.
func writeTables(w io.Writer, asXML bool, tables ...*dbx.DataTable) error {
	if asXML {
		for _, t := range tables {
			data, err := t.ToXML("row")
			if err != nil {
				return err
			}

			if _, err := fmt.Fprintln(w, string(data)); err != nil {
				return err
			}
		}

		return nil
	}

	out := make([]tableOutput, 0, len(tables))
	for _, t := range tables {
		o, err := tableJSON(t)
		if err != nil {
			return err
		}

		out = append(out, o)
	}

	if len(out) == 1 {
		return writeJSON(w, out[0])
	}

	return writeJSON(w, out)
}

// copyXML re-encodes every token of dec to w.
func copyXML(w io.Writer, dec *xml.Decoder) error {
	enc := xml.NewEncoder(w)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}

		if err != nil {
			return err
		}

		if err := enc.EncodeToken(tok); err != nil {
			return err
		}
	}

	if err := enc.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintln(w)

	return err
}

func outputParameters(params []*dbx.Parameter) []outputParameter {
	var out []outputParameter
	for _, p := range params {
		if p.IsOutput {
			out = append(out, outputParameter{Name: p.Name, Value: p.Value})
		}
	}

	return out
}
