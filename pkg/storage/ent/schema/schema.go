// Package schema describes the SQL tables shared by the sqlite and postgres
// drivers. Tables are migrated with ent's schema migrator.
package schema

import (
	entschema "entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table and column names.
const (
	DocumentsTableName = "documents"
	ManifestTableName  = "docquery_manifest"

	ColumnID            = "id"
	ColumnSeq           = "seq"
	ColumnText          = "text"
	ColumnMetadata      = "metadata"
	ColumnVector        = "vector"
	ColumnCreatedAt     = "created_at"
	ColumnUpdatedAt     = "updated_at"
	ColumnFormatVersion = "format_version"
	ColumnProvider      = "provider"
	ColumnModel         = "model"
	ColumnDimensions    = "dimensions"
	ColumnMetric        = "metric"
)

// ManifestRowID is the primary key of the single manifest row.
const ManifestRowID = 1

// textSize makes ent pick an unbounded text type.
const textSize = 2147483647

var (
	// DocumentsColumns holds the columns for the "documents" table.
	DocumentsColumns = []*entschema.Column{
		{Name: ColumnID, Type: field.TypeString, Unique: true},
		{Name: ColumnSeq, Type: field.TypeInt64},
		{Name: ColumnText, Type: field.TypeString, Size: textSize},
		{Name: ColumnMetadata, Type: field.TypeJSON, Nullable: true},
		{Name: ColumnVector, Type: field.TypeBytes},
		{Name: ColumnCreatedAt, Type: field.TypeTime},
		{Name: ColumnUpdatedAt, Type: field.TypeTime},
	}

	// DocumentsTable holds the schema information for the "documents" table.
	DocumentsTable = &entschema.Table{
		Name:       DocumentsTableName,
		Columns:    DocumentsColumns,
		PrimaryKey: []*entschema.Column{DocumentsColumns[0]},
		Indexes: []*entschema.Index{
			{
				Name:    "document_seq",
				Unique:  true,
				Columns: []*entschema.Column{DocumentsColumns[1]},
			},
		},
	}

	// ManifestColumns holds the columns for the manifest table.
	ManifestColumns = []*entschema.Column{
		{Name: ColumnID, Type: field.TypeInt, Unique: true},
		{Name: ColumnFormatVersion, Type: field.TypeInt},
		{Name: ColumnProvider, Type: field.TypeString},
		{Name: ColumnModel, Type: field.TypeString},
		{Name: ColumnDimensions, Type: field.TypeInt},
		{Name: ColumnMetric, Type: field.TypeString},
		{Name: ColumnCreatedAt, Type: field.TypeTime},
	}

	// ManifestTable holds the schema information for the manifest table.
	ManifestTable = &entschema.Table{
		Name:       ManifestTableName,
		Columns:    ManifestColumns,
		PrimaryKey: []*entschema.Column{ManifestColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*entschema.Table{
		DocumentsTable,
		ManifestTable,
	}
)

// DocumentColumns lists the document columns in scan order.
func DocumentColumns() []string {
	return []string{
		ColumnID,
		ColumnSeq,
		ColumnText,
		ColumnMetadata,
		ColumnVector,
		ColumnCreatedAt,
		ColumnUpdatedAt,
	}
}
