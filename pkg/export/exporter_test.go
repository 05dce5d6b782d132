package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Quotation", "Client", "Days Overdue"},
		Rows: []map[string]string{
			{"Quotation": "QT-2024-0001", "Client": "Ramya & Karthik", "Days Overdue": "6"},
			{"Quotation": "QT-2024-0002", "Client": "Priya, Arun", "Days Overdue": "3"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset(), "")
	require.NoError(t, err)
	assert.Equal(t, "Quotation,Client,Days Overdue\nQT-2024-0001,Ramya & Karthik,6\nQT-2024-0002,\"Priya, Arun\",3\n", string(out))
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(), "Overdue quotations")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{}, "")
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "x")
	assert.Error(t, err)
}

func TestCSVExporterNeutralisesFormulas(t *testing.T) {
	data := Dataset{
		Headers: []string{"Client", "Value"},
		Rows: []map[string]string{
			{"Client": "=HYPERLINK(\"x\")", "Value": "-12.50"},
			{"Client": "@SUM(A1)", "Value": "-cmd"},
		},
	}
	out, err := NewCSVExporter().Render(data, "")
	require.NoError(t, err)
	assert.Equal(t, "Client,Value\n\"'=HYPERLINK(\"\"x\"\")\",-12.50\n'@SUM(A1),'-cmd\n", string(out))
}

func TestCSVExporterByteOrderMark(t *testing.T) {
	out, err := NewCSVExporter(WithByteOrderMark()).Render(sampleDataset(), "")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("\xEF\xBB\xBF")))
	assert.Equal(t, "text/csv; charset=utf-8", NewCSVExporter().ContentType())
}
