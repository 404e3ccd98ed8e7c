package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is a log-friendly breakdown of an error chain.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Kind       Kind   `json:"kind,omitempty"`

	Chain []string `json:"chain,omitempty"`

	Store *StoreError `json:"store,omitempty"`
}

// StoreError holds what the database driver reported, if anything.
type StoreError struct {
	Driver     string `json:"driver"`
	Code       string `json:"code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Fields flattens the dump into logger fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_chain": d.Chain,
	}
	if d.Kind != "" {
		fields["error_kind"] = d.Kind
	}
	if s := d.Store; s != nil {
		fields["store_driver"] = s.Driver
		fields["store_code"] = s.Code
		fields["store_constraint"] = s.Constraint
		fields["store_table"] = s.Table
		fields["store_column"] = s.Column
		fields["store_detail"] = s.Detail
	}
	return fields
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Kind = te.Kind()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.Store = storeError(err)
	return d
}

func storeError(err error) *StoreError {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &StoreError{
			Driver:     "pgx",
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &StoreError{
			Driver:     "pq",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}

	// sqlite: "UNIQUE constraint failed: catalog_items.upload_date, catalog_items.area"
	const sqliteUnique = "UNIQUE constraint failed: "
	msg := err.Error()
	if i := strings.Index(msg, sqliteUnique); i >= 0 {
		cols := msg[i+len(sqliteUnique):]
		table, _, _ := strings.Cut(cols, ".")
		return &StoreError{Driver: "sqlite", Code: "UNIQUE", Table: table, Detail: cols, Message: msg}
	}
	return nil
}
