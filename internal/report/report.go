// Package report holds the per-frame result rows of an evaluation session and
// renders them as CSV, PNG curves and HTML charts.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

// Row is the score of one object on one frame after one interaction.
type Row struct {
	SessionID   string  `json:"session_id"`
	Sequence    string  `json:"sequence"`
	ScribbleIdx int     `json:"scribble_idx"`
	Interaction int     `json:"interaction"`
	ObjectID    int     `json:"object_id"`
	Frame       int     `json:"frame"`
	Jaccard     float64 `json:"jaccard"`
	Contour     float64 `json:"contour"`
	JAndF       float64 `json:"j_and_f"`
	Timing      float64 `json:"timing"`
}

// Columns is the CSV header in write order.
var Columns = []string{
	"session_id", "sequence", "scribble_idx", "interaction", "object_id",
	"frame", "jaccard", "contour", "j_and_f", "timing",
}

func (r Row) record() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return []string{
		r.SessionID,
		r.Sequence,
		strconv.Itoa(r.ScribbleIdx),
		strconv.Itoa(r.Interaction),
		strconv.Itoa(r.ObjectID),
		strconv.Itoa(r.Frame),
		f(r.Jaccard),
		f(r.Contour),
		f(r.JAndF),
		f(r.Timing),
	}
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a report. Columns are matched by header name so extra
// columns, such as a leading index, are ignored.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fault.Errorf(fault.ErrInvalidInput, "read report header: %v", err)
	}
	idx := make([]int, len(Columns))
	for i, name := range Columns {
		idx[i] = slices.Index(header, name)
		if idx[i] < 0 {
			return nil, fault.Errorf(fault.ErrInvalidInput, "report has no %q column", name)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fault.Errorf(fault.ErrInvalidInput, "line %d: %v", line, err)
		}
		row, err := parseRecord(rec, idx)
		if err != nil {
			return nil, fault.Errorf(fault.ErrInvalidInput, "line %d: %v", line, err)
		}
		rows = append(rows, row)
	}
}

func parseRecord(rec []string, idx []int) (Row, error) {
	field := func(i int) string {
		if idx[i] < len(rec) {
			return rec[idx[i]]
		}
		return ""
	}
	var (
		row  Row
		errs []error
	)
	atoi := func(i int) int {
		v, err := strconv.Atoi(field(i))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", Columns[i], err))
		}
		return v
	}
	atof := func(i int) float64 {
		v, err := strconv.ParseFloat(field(i), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", Columns[i], err))
		}
		return v
	}
	row.SessionID = field(0)
	row.Sequence = field(1)
	row.ScribbleIdx = atoi(2)
	row.Interaction = atoi(3)
	row.ObjectID = atoi(4)
	row.Frame = atoi(5)
	row.Jaccard = atof(6)
	row.Contour = atof(7)
	row.JAndF = atof(8)
	row.Timing = atof(9)
	if len(errs) > 0 {
		return Row{}, errs[0]
	}
	return row, nil
}
