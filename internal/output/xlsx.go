package output

import (
	"fmt"

	"sweep-bench/internal/sweep"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Sweep"

// XLSX appends one row per point to a workbook and saves it after every
// row, so an interrupted sweep still leaves a readable file.
type XLSX struct {
	f           *excelize.File
	path        string
	repetitions int
	row         int
}

func NewXLSX(path string, names []string, repetitions int) (*XLSX, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, err
	}

	header := make([]interface{}, 0, len(names)+repetitions+1)
	for _, n := range names {
		header = append(header, n)
	}
	for i := 1; i <= repetitions; i++ {
		header = append(header, fmt.Sprintf("run %d", i))
	}
	header = append(header, "terminated")

	x := &XLSX{f: f, path: path, repetitions: repetitions, row: 1}
	if err := x.setRow(header); err != nil {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(sheetName, "A1", last, bold)
	}

	if err := f.SaveAs(path); err != nil {
		f.Close()
		return nil, err
	}
	return x, nil
}

func (x *XLSX) setRow(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return err
	}
	if err := x.f.SetSheetRow(sheetName, cell, &values); err != nil {
		return err
	}
	x.row++
	return nil
}

func (x *XLSX) WriteLine(line *sweep.ResultLine) error {
	values := make([]interface{}, 0, line.Point.Len()+x.repetitions+1)
	for i := 0; i < line.Point.Len(); i++ {
		v := line.Point.Value(i)
		if n, ok := v.Int(); ok {
			values = append(values, n)
		} else {
			values = append(values, v.String())
		}
	}
	for _, t := range line.Trials {
		if t.Missing {
			values = append(values, "")
		} else {
			values = append(values, t.Value)
		}
	}
	if line.Terminated {
		for i := len(line.Trials); i < x.repetitions; i++ {
			values = append(values, "")
		}
		values = append(values, true)
	}
	if err := x.setRow(values); err != nil {
		return err
	}
	return x.f.SaveAs(x.path)
}

func (x *XLSX) WriteSeparator() error {
	x.row++
	return nil
}

func (x *XLSX) Close() error {
	if err := x.f.SaveAs(x.path); err != nil {
		x.f.Close()
		return err
	}
	return x.f.Close()
}
