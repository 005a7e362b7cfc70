package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Classified is implemented by webhook pipeline errors. Dump reads the
// failure kind and reason through it so responses never import the pipeline.
type Classified interface {
	error
	FailureKind() string
	FailureReason() string
	FailureRetryable() bool
}

// ErrorDump is the log-side view of a failed delivery.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Kind      string `json:"failure_kind,omitempty"`
	Reason    string `json:"failure_reason,omitempty"`
	Retryable bool   `json:"retryable"`

	Chain []string `json:"chain,omitempty"`

	SQLState   string `json:"sql_state,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(te.Code()).Retryable
	}

	var classified Classified
	if errors.As(err, &classified) {
		d.Kind = classified.FailureKind()
		d.Reason = classified.FailureReason()
		d.Retryable = classified.FailureRetryable()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	// ledger and account constraint violations surface from either pg driver
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.SQLState = pgxErr.Code
		d.Constraint = pgxErr.ConstraintName
		d.Table = pgxErr.TableName
		d.Detail = pgxErr.Detail
		return d
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.SQLState = string(pqErr.Code)
		d.Constraint = pqErr.Constraint
		d.Table = pqErr.Table
		d.Detail = pqErr.Detail
	}
	return d
}

// Fields flattens the dump for structured logging, omitting empty store fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
		"retryable":   d.Retryable,
	}
	for key, value := range map[string]string{
		"failure_kind":   d.Kind,
		"failure_reason": d.Reason,
		"sql_state":      d.SQLState,
		"constraint":     d.Constraint,
		"table":          d.Table,
		"detail":         d.Detail,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
