package tabular

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadCSV_UTF8(t *testing.T) {
	path := writeFile(t, "in.csv", []byte("INDIVIDUAL_ID,NAME,COMPANY_ID\n1,Zoë Adams,C1\n2,\"Smith, Bob\",C2\n"))

	tbl, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tbl.Columns) != 3 || len(tbl.Rows) != 2 {
		t.Fatalf("expected 3 columns and 2 rows, got %d/%d", len(tbl.Columns), len(tbl.Rows))
	}
	if tbl.Rows[0]["NAME"] != "Zoë Adams" {
		t.Errorf("unexpected name %q", tbl.Rows[0]["NAME"])
	}
	if tbl.Rows[1]["NAME"] != "Smith, Bob" {
		t.Errorf("unexpected quoted name %q", tbl.Rows[1]["NAME"])
	}
}

func TestReadCSV_Windows1252(t *testing.T) {
	path := writeFile(t, "in.csv", []byte("NAME,CITY\nJos\xe9,Z\xfcrich\n"))

	tbl, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.Rows[0]["NAME"] != "José" || tbl.Rows[0]["CITY"] != "Zürich" {
		t.Errorf("expected decoded latin-1 text, got %+v", tbl.Rows[0])
	}
}

func TestReadCSV_BOMAndShortRows(t *testing.T) {
	path := writeFile(t, "in.csv", []byte("\xef\xbb\xbfPROFILE_ID,FULL_NAME\nP1\n"))

	tbl, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tbl.Has("PROFILE_ID") {
		t.Errorf("BOM should be stripped from the first column, got %q", tbl.Columns[0])
	}
	if _, ok := tbl.Rows[0]["FULL_NAME"]; ok {
		t.Error("short row should leave trailing column absent")
	}
	if got := tbl.Missing("PROFILE_ID", "LOCATION"); len(got) != 1 || got[0] != "LOCATION" {
		t.Errorf("expected LOCATION missing, got %v", got)
	}
}

func TestReadCSV_Missing(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
}

func TestReadCSV_Empty(t *testing.T) {
	tbl, err := ReadCSV(writeFile(t, "in.csv", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tbl.Rows) != 0 {
		t.Errorf("expected no rows, got %d", len(tbl.Rows))
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	cols := []string{"TASK_ID", "summary"}
	if err := WriteCSV(path, cols, [][]string{{"7", "Raised $5M, led by \"Acme\""}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tbl, err := ReadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Rows[0]["summary"] != "Raised $5M, led by \"Acme\"" {
		t.Errorf("unexpected summary %q", tbl.Rows[0]["summary"])
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be gone")
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.xlsx")
	cols := []string{"company_name", "city"}
	rows := [][]string{{"Acme", "Springfield"}, {"Beta", ""}}

	if err := WriteXLSX(path, "Processed Data", cols, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := ReadXLSX(path, "Processed Data")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(got))
	}
	if got[0][0] != "company_name" || got[1][1] != "Springfield" || got[2][0] != "Beta" {
		t.Errorf("unexpected contents %v", got)
	}

	// A second write replaces the first.
	if err := WriteXLSX(path, "Processed Data", cols, rows[:1]); err != nil {
		t.Fatal(err)
	}
	got, _ = ReadXLSX(path, "Processed Data")
	if len(got) != 2 {
		t.Errorf("expected overwrite to 2 rows, got %d", len(got))
	}
}

func TestToASCII(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"José Müller", "Jose Muller"},
		{"Straße", "Strasse"},
		{"Łódź", "Lodz"},
		{"Ærø", "AEro"},
		{"“quoted” – dash", `"quoted" - dash`},
		{"北京 office", " office"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ToASCII(tt.in); got != tt.want {
				t.Errorf("ToASCII(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
