package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, format)

	format, err = ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)

	_, err = ParseFormat("xml")
	require.Error(t, err)
}

func TestWriteObject(t *testing.T) {
	obj := map[string]string{"user": "a@b.com"}

	var buf bytes.Buffer
	require.NoError(t, WriteObject(&buf, FormatJSON, obj))
	assert.Contains(t, buf.String(), `"user": "a@b.com"`)

	buf.Reset()
	require.NoError(t, WriteObject(&buf, FormatYAML, obj))
	assert.Contains(t, buf.String(), "user: a@b.com")

	require.Error(t, WriteObject(&buf, FormatTable, obj))
}

func TestTable(t *testing.T) {
	table := NewTable("NAME", "TENANT")
	table.AddRow("dev", "tenant-x")
	table.AddRow("prod")

	var buf bytes.Buffer
	require.NoError(t, table.Write(&buf))
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "dev")
	assert.Contains(t, out, "tenant-x")
	assert.Contains(t, out, "prod")
}
