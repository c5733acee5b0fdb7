package service

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportReportXLSX(t *testing.T) {
	r := approvedReport()
	data, err := ExportReportXLSX(r)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"报销明细", "报销单"}, f.GetSheetList())

	title, err := f.GetCellValue("报销明细", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Hotel", title)

	total, err := f.GetCellValue("报销明细", "F4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "15", total)

	vat, err := f.GetCellValue("报销明细", "G4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "2.25", vat)

	employee, err := f.GetCellValue("报销单", "B4")
	require.NoError(t, err)
	assert.Equal(t, "Alice Müller", employee)

	assert.Equal(t, "expense-report-42.xlsx", ReportXLSXFilename(r))
}
