package main

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"text/template"

	"github.com/go-openapi/inflect"
	"github.com/shrek82/jmap/core"
	"github.com/spf13/cobra"
)

type (
	genFlags struct {
		pkgName   string
		outDir    string
		overwrite bool
	}
)

const modelTemplate = `// Code generated by jmap gen from table {{.Table}}.

package {{.Package}}
{{if .Imports}}
import (
{{- range .Imports}}
	"{{.}}"
{{- end}}
)
{{end}}
// {{.StructName}} maps rows of {{.Table}}.
type {{.StructName}} struct {
{{- range .Fields}}
	{{.Name}} {{.Type}} ` + "`" + `jmap:"{{.Tag}}"` + "`" + `
{{- end}}
}
`

type genField struct {
	Name string
	Type string
	Tag  string
}

type genModel struct {
	Package    string
	Table      string
	StructName string
	Imports    []string
	Fields     []genField
}

func (c *Cmd) getGenCmd() *cobra.Command {
	genCmd := &cobra.Command{
		Use:   "gen table...",
		Short: "Generates model structs",
		Long:  `Generates a jmap model struct per table from the table's live column schema`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.execGen,
	}
	genCmd.PersistentFlags().StringVarP(&c.genFlags.pkgName, "pkg", "p", "models", "package name of generated files")
	genCmd.PersistentFlags().StringVarP(&c.genFlags.outDir, "out", "o", "./models", "output directory")
	genCmd.PersistentFlags().BoolVar(&c.genFlags.overwrite, "overwrite", false, "overwrite existing files")
	return genCmd
}

func (c *Cmd) execGen(cmd *cobra.Command, args []string) error {
	db, err := c.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := os.MkdirAll(c.genFlags.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, table := range args {
		if err := c.generateModel(cmd.Context(), db, table); err != nil {
			return fmt.Errorf("failed to generate %s: %w", table, err)
		}
	}
	return nil
}

func (c *Cmd) generateModel(ctx context.Context, db *core.DB, table string) error {
	fileName := filepath.Join(c.genFlags.outDir, inflect.Underscore(inflect.Singularize(table))+".go")
	if _, err := os.Stat(fileName); err == nil && !c.genFlags.overwrite {
		log.Printf("File %s exists, skipping (use --overwrite)\n", fileName)
		return nil
	}

	cols, err := core.DiscoverSchema(ctx, db, table)
	if err != nil {
		return err
	}
	m := buildGenModel(c.genFlags.pkgName, table, cols)

	tmpl, err := template.New("model").Parse(modelTemplate)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, m); err != nil {
		return err
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("generated invalid source: %w", err)
	}
	if err := os.WriteFile(fileName, src, 0644); err != nil {
		return err
	}
	if c.rootFlags.debugMode {
		log.Printf("Generated %s -> %s\n", table, fileName)
	}
	return nil
}

func buildGenModel(pkg, table string, cols []core.ColumnInfo) genModel {
	m := genModel{
		Package:    pkg,
		Table:      table,
		StructName: inflect.Camelize(inflect.Singularize(table)),
	}
	needTime := false
	for _, col := range cols {
		typ := goType(col)
		if strings.Contains(typ, "time.Time") {
			needTime = true
		}
		tag := "column:" + col.Name
		if strings.EqualFold(col.Name, "id") {
			tag += ";pk"
		}
		m.Fields = append(m.Fields, genField{
			Name: fieldName(col.Name),
			Type: typ,
			Tag:  tag,
		})
	}
	if needTime {
		m.Imports = append(m.Imports, "time")
	}
	return m
}

func fieldName(column string) string {
	name := inflect.Camelize(inflect.Underscore(column))
	if strings.HasSuffix(name, "Id") {
		name = strings.TrimSuffix(name, "Id") + "ID"
	}
	if name == "" || !(name[0] >= 'A' && name[0] <= 'Z') {
		name = "X" + name
	}
	return name
}

// goType prefers the driver's scan type and falls back to the declared type.
func goType(col core.ColumnInfo) string {
	typ := declaredType(col.DatabaseType)
	if typ == "any" && col.ScanType != nil {
		typ = scanTypeName(col.ScanType)
	}
	if col.NullableKnown && col.Nullable && typ != "any" && typ != "[]byte" {
		typ = "*" + typ
	}
	return typ
}

func scanTypeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return t.Kind().String()
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "[]byte"
		}
	case reflect.Struct:
		if t.PkgPath() == "time" && t.Name() == "Time" {
			return "time.Time"
		}
	}
	return "any"
}

// declaredType maps a declared column type to a Go type.
func declaredType(dbType string) string {
	dbTypeUpper := strings.ToUpper(dbType)
	// "TINYINT(1)" -> "TINYINT"
	if idx := strings.Index(dbTypeUpper, "("); idx != -1 {
		dbTypeUpper = dbTypeUpper[:idx]
	}
	dbTypeUpper = strings.TrimSpace(dbTypeUpper)

	switch {
	case dbTypeUpper == "TINYINT":
		return "int8"
	case dbTypeUpper == "SMALLINT" || dbTypeUpper == "INT2":
		return "int16"
	case dbTypeUpper == "MEDIUMINT" || dbTypeUpper == "INT" || dbTypeUpper == "INT4":
		return "int32"
	case dbTypeUpper == "INTEGER" || dbTypeUpper == "BIGINT" || dbTypeUpper == "INT8":
		return "int64"
	case dbTypeUpper == "BOOLEAN" || dbTypeUpper == "BOOL" || dbTypeUpper == "BIT":
		return "bool"
	case dbTypeUpper == "BLOB" || dbTypeUpper == "BYTEA" || strings.HasSuffix(dbTypeUpper, "BLOB") || strings.HasSuffix(dbTypeUpper, "BINARY"):
		return "[]byte"
	case strings.Contains(dbTypeUpper, "CHAR") || strings.Contains(dbTypeUpper, "TEXT") || dbTypeUpper == "JSON" || dbTypeUpper == "UUID":
		return "string"
	case dbTypeUpper == "DECIMAL" || dbTypeUpper == "NUMERIC" || dbTypeUpper == "DOUBLE" || dbTypeUpper == "REAL" || dbTypeUpper == "FLOAT8":
		return "float64"
	case dbTypeUpper == "FLOAT" || dbTypeUpper == "FLOAT4":
		return "float32"
	case dbTypeUpper == "DATE" || dbTypeUpper == "DATETIME" || strings.HasPrefix(dbTypeUpper, "TIMESTAMP"):
		return "time.Time"
	default:
		return "any"
	}
}
