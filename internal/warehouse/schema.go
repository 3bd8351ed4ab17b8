package warehouse

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// RawSchema holds the tables loaded from source extracts.
	RawSchema = "raw"
	// AnalyticsSchema holds everything derived by the transformation stages.
	AnalyticsSchema = "analytics"
)

// Column is a typed raw table column.
type Column struct {
	Name string
	Type string // INTEGER, VARCHAR, DATE, TIMESTAMP or BOOLEAN
}

// RawTable describes one raw table and the extract it is loaded from.
type RawTable struct {
	Name    string
	Columns []Column
}

// QualifiedName returns raw.<name>.
func (t RawTable) QualifiedName() string {
	return RawSchema + "." + t.Name
}

// ExtractFile is the file name of the table's source extract.
func (t RawTable) ExtractFile() string {
	return "raw_" + t.Name + ".csv"
}

// ExtractPath joins the extract file name onto dataDir.
func (t RawTable) ExtractPath(dataDir string) string {
	return filepath.Join(dataDir, t.ExtractFile())
}

// CreateSQL returns the CREATE TABLE statement for the table.
func (t RawTable) CreateSQL() string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf("    %s %s", c.Name, c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", t.QualifiedName(), strings.Join(cols, ",\n"))
}

// DropSQL returns the DROP TABLE statement for the table.
func (t RawTable) DropSQL() string {
	return "DROP TABLE IF EXISTS " + t.QualifiedName()
}

// LoadSQL returns an INSERT that reads the extract with the table's fixed column
// order and types. The header row is skipped and empty strings load as NULL.
func (t RawTable) LoadSQL(path string) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf("%s: %s", quoteLiteral(c.Name), quoteLiteral(c.Type))
	}
	return fmt.Sprintf(
		"INSERT INTO %s SELECT * FROM read_csv(%s, header = true, nullstr = '', auto_detect = false, columns = {%s})",
		t.QualifiedName(), quoteLiteral(path), strings.Join(cols, ", "),
	)
}

// CountSQL returns the row count query for the table.
func (t RawTable) CountSQL() string {
	return "SELECT COUNT(*) FROM " + t.QualifiedName()
}

// Index is a lookup index built after the bulk load.
type Index struct {
	Name   string
	Table  string
	Column string
}

// CreateSQL returns the CREATE INDEX statement.
func (i Index) CreateSQL() string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s.%s(%s)", i.Name, RawSchema, i.Table, i.Column)
}

// RawTables is the fixed raw schema in load order.
var RawTables = []RawTable{
	{
		Name: "users",
		Columns: []Column{
			{"id", "INTEGER"},
			{"fullName", "VARCHAR"},
			{"email", "VARCHAR"},
			{"signupDate", "DATE"},
			{"state", "VARCHAR"},
			{"isGovEmployee", "BOOLEAN"},
			{"updatedAt", "TIMESTAMP"},
			{"deleted", "BOOLEAN"},
		},
	},
	{
		Name: "courses",
		Columns: []Column{
			{"course_id", "INTEGER"},
			{"title", "VARCHAR"},
			{"category_name", "VARCHAR"},
			{"level", "VARCHAR"},
			{"publisher", "VARCHAR"},
			{"course_created_at", "DATE"},
		},
	},
	{
		Name: "enrolments",
		Columns: []Column{
			{"enrolment_id", "INTEGER"},
			{"user_id", "INTEGER"},
			{"course_id", "INTEGER"},
			{"enrolled_at", "TIMESTAMP"},
			{"status", "VARCHAR"},
		},
	},
	{
		Name: "events",
		Columns: []Column{
			{"id", "INTEGER"},
			{"user_id", "INTEGER"},
			{"course_id", "INTEGER"},
			{"event_type", "VARCHAR"},
			{"event_timestamp", "TIMESTAMP"},
			{"session_id", "VARCHAR"},
			{"metadata", "VARCHAR"},
		},
	},
}

// RawIndexes are built once every table is loaded.
var RawIndexes = []Index{
	{Name: "idx_users_id", Table: "users", Column: "id"},
	{Name: "idx_enrolments_user_id", Table: "enrolments", Column: "user_id"},
	{Name: "idx_enrolments_course_id", Table: "enrolments", Column: "course_id"},
	{Name: "idx_events_user_id", Table: "events", Column: "user_id"},
	{Name: "idx_events_course_id", Table: "events", Column: "course_id"},
}

// TableNames returns the raw table names in load order.
func TableNames() []string {
	names := make([]string, len(RawTables))
	for i, t := range RawTables {
		names[i] = t.Name
	}
	return names
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
