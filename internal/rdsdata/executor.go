// Package rdsdata implements the statement executor over the RDS Data API.
// Every call is a self-contained HTTPS request carrying the cluster ARN, the
// credential secret ARN and an optional transaction id; no connection is held.
package rdsdata

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"github.com/aws/smithy-go"

	"github.com/fivequarters/q5-sub008/internal/connection"
	"github.com/fivequarters/q5-sub008/internal/postgres"
	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// API is the subset of the Data API client the executor uses.
type API interface {
	ExecuteStatement(ctx context.Context, in *rdsdata.ExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error)
	BeginTransaction(ctx context.Context, in *rdsdata.BeginTransactionInput, optFns ...func(*rdsdata.Options)) (*rdsdata.BeginTransactionOutput, error)
	CommitTransaction(ctx context.Context, in *rdsdata.CommitTransactionInput, optFns ...func(*rdsdata.Options)) (*rdsdata.CommitTransactionOutput, error)
	RollbackTransaction(ctx context.Context, in *rdsdata.RollbackTransactionInput, optFns ...func(*rdsdata.Options)) (*rdsdata.RollbackTransactionOutput, error)
}

// TimestampLayout is the format the Data API accepts for TIMESTAMP values.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Executor issues statements through the Data API.
type Executor struct {
	api   API
	creds connection.Resolver
}

// New returns an executor using api, resolving coordinates from creds on
// every call.
func New(api API, creds connection.Resolver) *Executor {
	return &Executor{api: api, creds: creds}
}

// Load builds a Data API client from the default AWS credential chain.
func Load(ctx context.Context, region string, creds connection.Resolver) (*Executor, error) {
	cfg, err := connection.LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return New(rdsdata.NewFromConfig(cfg), creds), nil
}

// Dialect returns statement.Postgres; the Data API fronts Aurora PostgreSQL.
func (e *Executor) Dialect() statement.Dialect {
	return statement.Postgres
}

// EnsureSchema sends each schema statement on its own.
func (e *Executor) EnsureSchema(ctx context.Context) error {
	for _, ddl := range postgres.Schema {
		if _, err := e.Execute(ctx, statement.New(ddl), ""); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Execute sends one statement, inside transaction txID when it is set.
func (e *Executor) Execute(ctx context.Context, stmt statement.Statement, txID string) (*statement.Result, error) {
	creds, err := e.creds.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	in := &rdsdata.ExecuteStatementInput{
		ResourceArn:           aws.String(creds.ResourceID),
		SecretArn:             aws.String(creds.SecretID),
		Database:              aws.String(creds.Database),
		Sql:                   aws.String(stmt.SQL),
		Parameters:            Parameters(stmt.Params),
		IncludeResultMetadata: true,
	}
	if txID != "" {
		in.TransactionId = aws.String(txID)
	}

	out, err := e.api.ExecuteStatement(ctx, in)
	if err != nil {
		return nil, translate(err)
	}
	return decodeOutput(out), nil
}

// Parameters converts statement parameters to Data API parameters, sorted by
// name.
func Parameters(params statement.Params) []rdstypes.SqlParameter {
	if len(params) == 0 {
		return nil
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]rdstypes.SqlParameter, 0, len(names))
	for _, name := range names {
		field, hint := Field(params[name])
		out = append(out, rdstypes.SqlParameter{
			Name:     aws.String(name),
			Value:    field,
			TypeHint: hint,
		})
	}
	return out
}

// Field converts a Value to its Data API field and type hint.
func Field(v statement.Value) (rdstypes.Field, rdstypes.TypeHint) {
	switch v.Kind() {
	case statement.KindText:
		return &rdstypes.FieldMemberStringValue{Value: v.AsText()}, ""
	case statement.KindInteger:
		n, _ := v.AsInteger()
		return &rdstypes.FieldMemberLongValue{Value: n}, ""
	case statement.KindFloat:
		return &rdstypes.FieldMemberDoubleValue{Value: v.AsFloat()}, ""
	case statement.KindBool:
		return &rdstypes.FieldMemberBooleanValue{Value: v.AsBool()}, ""
	case statement.KindTimestamp:
		t, _ := v.AsTime()
		return &rdstypes.FieldMemberStringValue{Value: t.UTC().Format(TimestampLayout)}, rdstypes.TypeHintTimestamp
	case statement.KindBytes:
		return &rdstypes.FieldMemberBlobValue{Value: v.AsBytes()}, ""
	default:
		return &rdstypes.FieldMemberIsNull{Value: true}, ""
	}
}

// Value converts a Data API result field to a Value. Array fields are not
// produced by entity statements and read as Null.
func Value(f rdstypes.Field) statement.Value {
	switch m := f.(type) {
	case *rdstypes.FieldMemberStringValue:
		return statement.Text(m.Value)
	case *rdstypes.FieldMemberLongValue:
		return statement.Integer(m.Value)
	case *rdstypes.FieldMemberDoubleValue:
		return statement.Float(m.Value)
	case *rdstypes.FieldMemberBooleanValue:
		return statement.Bool(m.Value)
	case *rdstypes.FieldMemberBlobValue:
		return statement.Bytes(m.Value)
	default:
		return statement.Null()
	}
}

func decodeOutput(out *rdsdata.ExecuteStatementOutput) *statement.Result {
	names := make([]string, len(out.ColumnMetadata))
	for i, col := range out.ColumnMetadata {
		names[i] = aws.ToString(col.Label)
		if names[i] == "" {
			names[i] = aws.ToString(col.Name)
		}
	}

	result := &statement.Result{RowsAffected: out.NumberOfRecordsUpdated}
	for _, record := range out.Records {
		row := make(statement.Row, len(record))
		for i, field := range record {
			if i < len(names) {
				row[names[i]] = Value(field)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if n := int64(len(result.Rows)); n > result.RowsAffected {
		result.RowsAffected = n
	}
	return result
}

// translate maps Data API errors onto the engine taxonomy. A transaction id
// the service no longer knows becomes ErrTransactionNotFound.
func translate(err error) error {
	var notFound *rdstypes.NotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", types.ErrTransactionNotFound, aws.ToString(notFound.Message))
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && statement.IsConflictMessage(apiErr.ErrorMessage()) {
		return &types.ConflictError{Err: err}
	}
	return statement.TranslateError(err)
}

// Begin starts a transaction. Data API transactions expire after three
// minutes of inactivity.
func (e *Executor) Begin(ctx context.Context) (string, error) {
	creds, err := e.creds.Resolve(ctx)
	if err != nil {
		return "", err
	}
	out, err := e.api.BeginTransaction(ctx, &rdsdata.BeginTransactionInput{
		ResourceArn: aws.String(creds.ResourceID),
		SecretArn:   aws.String(creds.SecretID),
		Database:    aws.String(creds.Database),
	})
	if err != nil {
		return "", translate(err)
	}
	return aws.ToString(out.TransactionId), nil
}

// Commit ends the transaction, keeping its writes.
func (e *Executor) Commit(ctx context.Context, txID string) error {
	creds, err := e.creds.Resolve(ctx)
	if err != nil {
		return err
	}
	_, err = e.api.CommitTransaction(ctx, &rdsdata.CommitTransactionInput{
		ResourceArn:   aws.String(creds.ResourceID),
		SecretArn:     aws.String(creds.SecretID),
		TransactionId: aws.String(txID),
	})
	return translate(err)
}

// Rollback ends the transaction, discarding its writes.
func (e *Executor) Rollback(ctx context.Context, txID string) error {
	creds, err := e.creds.Resolve(ctx)
	if err != nil {
		return err
	}
	_, err = e.api.RollbackTransaction(ctx, &rdsdata.RollbackTransactionInput{
		ResourceArn:   aws.String(creds.ResourceID),
		SecretArn:     aws.String(creds.SecretID),
		TransactionId: aws.String(txID),
	})
	return translate(err)
}
