package extract

import (
	"casescraper/internal/domain"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var caseIDRe = regexp.MustCompile(`case_id\s*=\s*(\d+)`)

// ListingRow is one search-result row: the case id needed to fetch the
// detail page plus the status shown in the listing.
type ListingRow struct {
	CaseID string
	Status string
}

// openStatuses are the listing statuses worth scraping further.
var openStatuses = map[string]bool{
	"OPEN":     true,
	"REOPENED": true,
}

// CaseListing parses the search results table. Rows with an OPEN or
// REOPENED status cell are kept; the case id comes from the row's onclick
// attribute. A matching row without an extractable id is counted as a
// parse failure and skipped, never aborting the rest of the page.
func CaseListing(html string) (rows []ListingRow, parseFailures int, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, err
	}

	doc.Find("tr").Each(func(i int, tr *goquery.Selection) {
		status := ""
		tr.Find("td").EachWithBreak(func(j int, td *goquery.Selection) bool {
			text := strings.TrimSpace(td.Text())
			if openStatuses[text] {
				status = text
				return false
			}
			return true
		})
		if status == "" {
			return
		}

		onclick, _ := tr.Attr("onclick")
		m := caseIDRe.FindStringSubmatch(onclick)
		if m == nil {
			parseFailures++
			return
		}
		rows = append(rows, ListingRow{CaseID: m[1], Status: status})
	})

	return rows, parseFailures, nil
}

// CaseDetail parses a case information page into a CaseRecord. Field
// extraction is tolerant: selection is by label text next to the value
// cell, so attribute order and whitespace drift do not matter, and a
// missing optional field leaves its zero value on the record.
func CaseDetail(html, caseID, county, sourceURL string) (*domain.CaseRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	record := &domain.CaseRecord{
		CaseID:    caseID,
		County:    county,
		SourceURL: sourceURL,
	}

	cells := doc.Find("td, th")
	cells.Each(func(i int, cell *goquery.Selection) {
		label := strings.TrimSpace(cell.Text())
		next := func() string {
			if i+1 < cells.Length() {
				return strings.TrimSpace(cells.Eq(i + 1).Text())
			}
			return ""
		}

		switch {
		case strings.Contains(label, "Case Action:") || strings.Contains(label, "Case Type:"):
			record.FilingType = next()
		case strings.Contains(label, "File Date:"):
			record.FilingDate = next()
		case strings.Contains(label, "Case Status"):
			// Status cells sometimes carry a trailing date; the first word
			// is the status itself.
			if parts := strings.Fields(next()); len(parts) > 0 {
				record.CaseStatus = parts[0]
			}
		case strings.Contains(label, "Status:") && record.CaseStatus == "":
			record.CaseStatus = next()
		case strings.Contains(label, "Property Address:"):
			record.PropertyAddress = next()
		}
	})

	doc.Find("tr").Each(func(i int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() < 2 {
			return
		}
		label := strings.ToUpper(strings.TrimSpace(tds.Eq(0).Text()))
		value := strings.TrimSpace(tds.Eq(1).Text())

		switch {
		case strings.Contains(label, "PARCEL NUMBER"):
			record.ParcelNumber = value
		case label == "PLAINTIFF":
			record.Plaintiff = value
		case strings.Contains(label, "DEFENDANT"):
			if value != "" {
				record.Defendants = append(record.Defendants, value)
			}
		case strings.Contains(label, "CASE FILING ID"):
			record.CaseFilingID = value
		}
	})

	return record, nil
}

// FormState extracts the ASP.NET hidden form fields the search POST must
// echo back. Missing fields yield empty strings; the site rejects such a
// request with an error page rather than a 4xx, which surfaces downstream
// as an empty listing.
func FormState(html string) (viewState, eventValidation string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}
	viewState, _ = doc.Find(`input[name="__VIEWSTATE"]`).First().Attr("value")
	eventValidation, _ = doc.Find(`input[name="__EVENTVALIDATION"]`).First().Attr("value")
	return viewState, eventValidation, nil
}
