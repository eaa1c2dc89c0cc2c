package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `
<html><body>
<table class="results">
  <tr>
    <th>Case Number</th><th>Type</th><th>Status</th>
  </tr>
  <tr onclick="window.location='caseInformation.aspx?case_id=100001'">
    <td>2024 CV 01234</td>
    <td>MORTGAGE FORECLOSURE (MF)</td>
    <td class="text-success">OPEN</td>
  </tr>
  <tr onclick="window.location='caseInformation.aspx?case_id = 100002'">
    <td>2024 CV 01235</td>
    <td>MORTGAGE FORECLOSURE (MF)</td>
    <td>REOPENED</td>
  </tr>
  <tr>
    <td>2024 CV 01236</td>
    <td>MORTGAGE FORECLOSURE (MF)</td>
    <td>CLOSED</td>
  </tr>
  <tr onclick="doNothing()">
    <td>2024 CV 01237</td>
    <td>MORTGAGE FORECLOSURE (MF)</td>
    <td>OPEN</td>
  </tr>
</table>
</body></html>`

func TestCaseListing(t *testing.T) {
	rows, failures, err := CaseListing(listingHTML)
	require.NoError(t, err)

	// Two rows with extractable ids; the OPEN row without a case_id in its
	// onclick counts as a parse failure; the CLOSED row is ignored.
	require.Len(t, rows, 2)
	assert.Equal(t, "100001", rows[0].CaseID)
	assert.Equal(t, "OPEN", rows[0].Status)
	assert.Equal(t, "100002", rows[1].CaseID)
	assert.Equal(t, "REOPENED", rows[1].Status)
	assert.Equal(t, 1, failures)
}

func TestCaseListingEmptyPage(t *testing.T) {
	rows, failures, err := CaseListing("<html><body><p>No records found.</p></body></html>")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, failures)
}

func TestCaseListingMarkupDrift(t *testing.T) {
	// Same semantics with different attribute order and extra whitespace.
	drifted := `
	<table>
	  <tr class="row   odd"   onclick=" location = 'x?case_id=42' ">
	    <td>
	        OPEN
	    </td>
	  </tr>
	</table>`
	rows, failures, err := CaseListing(drifted)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "42", rows[0].CaseID)
	assert.Zero(t, failures)
}

const detailHTML = `
<html><body>
<table>
  <tr><td>Case Action:</td><td>MORTGAGE FORECLOSURE (MF)</td></tr>
  <tr><td>File Date:</td><td>03/15/2024</td></tr>
  <tr><td>Case Status</td><td>OPEN 03/15/2024</td></tr>
  <tr><td>Property Address:</td><td>123 MAIN ST DAYTON OH 45402</td></tr>
</table>
<table>
  <tr><td>PARCEL NUMBER</td><td>R72 00101 0032</td></tr>
  <tr><td>PLAINTIFF</td><td>FIRST BANK NA</td></tr>
  <tr><td>DEFENDANT 1</td><td>DOE, JOHN</td></tr>
  <tr><td>DEFENDANT 2</td><td>DOE, JANE</td></tr>
  <tr><td>CASE FILING ID</td><td>MF-2024-0042</td></tr>
</table>
</body></html>`

func TestCaseDetail(t *testing.T) {
	record, err := CaseDetail(detailHTML, "100001", "Montgomery", "https://court.example/case?case_id=100001")
	require.NoError(t, err)

	assert.Equal(t, "100001", record.CaseID)
	assert.Equal(t, "MORTGAGE FORECLOSURE (MF)", record.FilingType)
	assert.Equal(t, "03/15/2024", record.FilingDate)
	assert.Equal(t, "OPEN", record.CaseStatus)
	assert.Equal(t, "123 MAIN ST DAYTON OH 45402", record.PropertyAddress)
	assert.Equal(t, "R72 00101 0032", record.ParcelNumber)
	assert.Equal(t, "FIRST BANK NA", record.Plaintiff)
	assert.Equal(t, []string{"DOE, JOHN", "DOE, JANE"}, record.Defendants)
	assert.Equal(t, "MF-2024-0042", record.CaseFilingID)
	assert.Equal(t, "Montgomery", record.County)
	assert.Equal(t, "https://court.example/case?case_id=100001", record.SourceURL)
}

func TestCaseDetailMissingOptionalFields(t *testing.T) {
	partial := `
	<table>
	  <tr><td>Case Type:</td><td>MORTGAGE FORECLOSURE (MF)</td></tr>
	  <tr><td>Status:</td><td>OPEN</td></tr>
	</table>`
	record, err := CaseDetail(partial, "7", "Montgomery", "src")
	require.NoError(t, err)

	assert.Equal(t, "MORTGAGE FORECLOSURE (MF)", record.FilingType)
	assert.Equal(t, "OPEN", record.CaseStatus)
	// Missing optional fields stay zero-valued rather than failing.
	assert.Empty(t, record.PropertyAddress)
	assert.Empty(t, record.ParcelNumber)
	assert.Empty(t, record.Defendants)
}

func TestFormState(t *testing.T) {
	page := `
	<form>
	  <input type="hidden" name="__VIEWSTATE" value="vs-abc123" />
	  <input value="ev-def456" name="__EVENTVALIDATION" type="hidden" />
	</form>`
	vs, ev, err := FormState(page)
	require.NoError(t, err)
	assert.Equal(t, "vs-abc123", vs)
	assert.Equal(t, "ev-def456", ev)
}

func TestFormStateMissingFields(t *testing.T) {
	vs, ev, err := FormState("<html><body></body></html>")
	require.NoError(t, err)
	assert.Empty(t, vs)
	assert.Empty(t, ev)
}
