package dbx_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

// TestDecimalValueRejectsNonDecimalText checks decimal parsing.
func TestDecimalValueRejectsNonDecimalText(t *testing.T) {
	for _, ok := range []string{"5", "5.0", "-0.25", "+12.50", "1e3"} {
		_, err := dbx.DecimalValue(ok)
		assert.NoError(t, err, ok)
	}

	for _, bad := range []string{"", "1/3", "0x10", "NaN", "abc", "1_000"} {
		_, err := dbx.DecimalValue(bad)
		assert.Error(t, err, bad)
	}
}

// TestAsInt64RejectsFractions checks lossless integer conversion.
func TestAsInt64RejectsFractions(t *testing.T) {
	i, err := dbx.MustDecimal("5.0").AsInt64()
	require.NoError(t, err)
	assert.EqualValues(t, 5, i)

	_, err = dbx.MustDecimal("5.5").AsInt64()
	assert.Error(t, err)

	_, err = dbx.FloatValue(2.5).AsInt64()
	assert.Error(t, err)
}

// TestValueOfDriverTypes checks the boundary conversion of driver results.
func TestValueOfDriverTypes(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, dbx.ValueOf(nil).IsNull())
	assert.Equal(t, dbx.Int64Value(7), dbx.ValueOf(int32(7)))
	assert.Equal(t, dbx.StringValue("x"), dbx.ValueOf(sql.NullString{String: "x", Valid: true}))
	assert.True(t, dbx.ValueOf(sql.NullInt64{}).IsNull())
	assert.Equal(t, dbx.TimeValue(now), dbx.ValueOf(now))
	assert.Equal(t, dbx.KindBytes, dbx.ValueOf([]byte{1, 2}).Kind())
}

// TestValueMarshalJSON checks that decimals are emitted as numbers.
func TestValueMarshalJSON(t *testing.T) {
	out, err := json.Marshal(map[string]dbx.Value{"amount": dbx.MustDecimal("10.50"), "name": dbx.StringValue("a")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":10.50,"name":"a"}`, string(out))
}

// TestParseLogicalType checks case-insensitive parsing.
func TestParseLogicalType(t *testing.T) {
	lt, err := dbx.ParseLogicalType("refcursor")
	require.NoError(t, err)
	assert.Equal(t, dbx.RefCursor, lt)

	_, err = dbx.ParseLogicalType("uuidv7")
	assert.Error(t, err)

	ct, err := dbx.ParseCallType("StoredProcedure")
	require.NoError(t, err)
	assert.Equal(t, dbx.StoredProcedure, ct)
}

// TestParameterIsSimple checks which parameters a change watcher accepts.
func TestParameterIsSimple(t *testing.T) {
	assert.True(t, dbx.NewParameter("id", dbx.Int64, dbx.Int64Value(1)).IsSimple())
	assert.False(t, dbx.NewOutputParameter("total", dbx.Int64, 0).IsSimple())
	assert.False(t, dbx.NewParameter("doc", dbx.Binary, dbx.BytesValue([]byte("x"))).IsSimple())
	assert.False(t, dbx.NewParameter("cur", dbx.RefCursor, dbx.Null()).IsSimple())
}

// TestNormalizeParameterName checks that the marker appears exactly once, or not at all when
// stripped.
func TestNormalizeParameterName(t *testing.T) {
	cases := []struct {
		name   string
		marker byte
		strip  bool
		want   string
	}{
		{"id", '@', false, "@id"},
		{"@id", '@', false, "@id"},
		{"@@id", '@', false, "@id"},
		{"id", ':', false, ":id"},
		{":id", ':', false, ":id"},
		{":id", ':', true, "id"},
		{"id", ':', true, "id"},
		{"@id", '@', true, "id"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, dbx.NormalizeParameterName(c.name, c.marker, c.strip), c.name)
	}
}
