package oradb

import (
	"encoding/xml"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	go_ora "github.com/sijms/go-ora/v2"
	"golang.org/x/text/encoding/unicode"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// structuredClob serializes a structured value to JSON, or to XML when asXml is set, and binds
// it as a CLOB. Tables use their row serialization; strings are taken as already serialized.
func structuredClob(v dbx.Value, asXml bool, rowElement string) (go_ora.Clob, error) {
	if v.IsNull() {
		return go_ora.Clob{Valid: false}, nil
	}

	var (
		doc []byte
		err error
	)

	switch v.Kind() {
	case dbx.KindString:
		doc = []byte(v.AsString())
	case dbx.KindTable:
		if asXml {
			doc, err = v.AsTable().ToXML(rowElement)
		} else {
			doc, err = v.AsTable().ToJSON()
		}
	default:
		if asXml {
			doc, err = xml.Marshal(v.Interface())
		} else {
			doc, err = json.Marshal(v.Interface())
		}
	}

	if err != nil {
		return go_ora.Clob{}, errors.Wrap(err, "error serializing structured value")
	}

	return go_ora.Clob{String: string(doc), Valid: true}, nil
}

// binaryBlob binds a Binary parameter as a BLOB. Byte values are written as is, any other
// value as the UTF-16LE encoding of its text.
func binaryBlob(v dbx.Value) (go_ora.Blob, error) {
	if v.IsNull() {
		return go_ora.Blob{Valid: false}, nil
	}

	if v.Kind() == dbx.KindBytes {
		b, err := v.AsBytes()
		return go_ora.Blob{Data: b, Valid: true}, err
	}

	data, err := utf16le.NewEncoder().Bytes([]byte(v.AsString()))
	if err != nil {
		return go_ora.Blob{}, errors.Wrap(err, "error encoding binary value")
	}

	return go_ora.Blob{Data: data, Valid: true}, nil
}
