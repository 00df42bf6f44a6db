// Package report renders the per-shape coefficient table to console, CSV,
// and XLSX, in the fixed row and column order of the study's Table 1.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/empirical-se/expertise-cli/internal/fit"
	"github.com/empirical-se/expertise-cli/internal/model"
)

// Columns holds the fixed column headers, index-aligned with
// fit.FeatureNames.
var Columns = []string{
	"Answer Length (Long)",
	"Answer Length (Summ.)",
	"Includes Code",
	"Includes Image",
	"Includes Reference",
}

// notConverged marks every cell of a shape whose fit did not converge.
const notConverged = "n/c"

// cell formats one coefficient with its significance stars.
func cell(r fit.Result, j int) string {
	if !r.Converged {
		return notConverged
	}
	c := r.Coefficients[j]
	return fmt.Sprintf("%.3f%s", c.Value, c.Stars)
}

// RenderTable writes the coefficient table and the star legend. Output is
// byte-stable for identical results.
func RenderTable(w io.Writer, results []fit.Result) error {
	fmt.Fprintln(w, "=== Logistic Regression Coefficients by Expertise Shape ===")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "Shape")
	for _, col := range Columns {
		fmt.Fprintf(tw, "\t%s", col)
	}
	fmt.Fprintf(tw, "\tN\n")

	for _, r := range results {
		fmt.Fprint(tw, r.Shape)
		for j := range Columns {
			fmt.Fprintf(tw, "\t%s", cell(r, j))
		}
		fmt.Fprintf(tw, "\t%d\n", r.Observations)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "report: flush table")
	}

	fmt.Fprintln(w, "* p < .05, ** p < .01, *** p < .001; n/c = did not converge")
	for _, r := range results {
		if !r.Converged {
			fmt.Fprintf(w, "%s: %s\n", r.Shape, r.Reason)
		}
	}
	return nil
}

// RenderDistribution writes the shape distribution table.
func RenderDistribution(w io.Writer, dist map[model.Shape]int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Shape\tUsers")
	for _, s := range model.Shapes {
		fmt.Fprintf(tw, "%s\t%d\n", s, dist[s])
	}
	return eris.Wrap(tw.Flush(), "report: flush distribution")
}

// WriteCSV writes the coefficient table as one CSV file. Non-converged
// shapes keep their row with n/c cells so the table stays rectangular.
func WriteCSV(path string, results []fit.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)

	header := append([]string{"shape"}, Columns...)
	header = append(header, "n", "converged")
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "report: write CSV header")
	}

	for _, r := range results {
		row := []string{r.Shape.String()}
		for j := range Columns {
			row = append(row, cell(r, j))
		}
		row = append(row, strconv.Itoa(r.Observations), strconv.FormatBool(r.Converged))
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "report: write CSV row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "report: flush CSV")
	}
	return nil
}

// WriteXLSX writes the coefficient table as a spreadsheet with separate
// value and stars columns so the numbers stay numeric.
func WriteXLSX(path string, results []fit.Result) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("coefficients")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	header.AddCell().Value = "shape"
	for _, col := range Columns {
		header.AddCell().Value = col
		header.AddCell().Value = col + " sig."
	}
	header.AddCell().Value = "n"

	for _, r := range results {
		row := sheet.AddRow()
		row.AddCell().Value = r.Shape.String()
		for j := range Columns {
			if r.Converged {
				row.AddCell().SetFloat(r.Coefficients[j].Value)
				row.AddCell().Value = r.Coefficients[j].Stars
			} else {
				row.AddCell().Value = notConverged
				row.AddCell().Value = ""
			}
		}
		row.AddCell().SetInt(r.Observations)
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}
