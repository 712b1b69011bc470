package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// StoreFault carries the driver error behind a storage failure.
type StoreFault struct {
	Driver     string `json:"driver"`
	Code       string `json:"code"`
	Extended   string `json:"extended,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string      `json:"top_message"`
	Code       Code        `json:"code,omitempty"`
	Reason     Reason      `json:"reason,omitempty"`
	Chain      []string    `json:"chain,omitempty"`
	Store      *StoreFault `json:"store,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), Store: storeFault(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Reason = te.Reason()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields renders the dump as log fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if d.Reason != "" {
		fields["error_reason"] = string(d.Reason)
	}
	if s := d.Store; s != nil {
		fields["store_driver"] = s.Driver
		fields["store_code"] = s.Code
		for key, value := range map[string]string{
			"store_extended":   s.Extended,
			"store_constraint": s.Constraint,
			"store_table":      s.Table,
			"store_column":     s.Column,
			"store_detail":     s.Detail,
			"store_message":    s.Message,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}

func storeFault(err error) *StoreFault {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &StoreFault{
			Driver:     "postgres",
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
		return &StoreFault{
			Driver:     "postgres",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return &StoreFault{
			Driver:   "sqlite",
			Code:     liteErr.Code.Error(),
			Extended: liteErr.ExtendedCode.Error(),
			Message:  liteErr.Error(),
		}
	}
	return nil
}
