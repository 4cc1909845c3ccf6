package rdsdata

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivequarters/q5-sub008/internal/connection"
	"github.com/fivequarters/q5-sub008/internal/postgres"
	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

type staticCreds struct{}

func (staticCreds) Resolve(context.Context) (connection.Credentials, error) {
	return connection.Credentials{
		SecretID:   "arn:secret",
		ResourceID: "arn:cluster",
		Database:   "entitystore",
	}, nil
}

// fakeAPI records requests and replays a canned response.
type fakeAPI struct {
	executes  []*rdsdata.ExecuteStatementInput
	out       *rdsdata.ExecuteStatementOutput
	err       error
	committed []string
	rolled    []string
}

func (f *fakeAPI) ExecuteStatement(_ context.Context, in *rdsdata.ExecuteStatementInput, _ ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error) {
	f.executes = append(f.executes, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.out == nil {
		return &rdsdata.ExecuteStatementOutput{}, nil
	}
	return f.out, nil
}

func (f *fakeAPI) BeginTransaction(context.Context, *rdsdata.BeginTransactionInput, ...func(*rdsdata.Options)) (*rdsdata.BeginTransactionOutput, error) {
	return &rdsdata.BeginTransactionOutput{TransactionId: aws.String("tx-42")}, nil
}

func (f *fakeAPI) CommitTransaction(_ context.Context, in *rdsdata.CommitTransactionInput, _ ...func(*rdsdata.Options)) (*rdsdata.CommitTransactionOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.committed = append(f.committed, aws.ToString(in.TransactionId))
	return &rdsdata.CommitTransactionOutput{}, nil
}

func (f *fakeAPI) RollbackTransaction(_ context.Context, in *rdsdata.RollbackTransactionInput, _ ...func(*rdsdata.Options)) (*rdsdata.RollbackTransactionOutput, error) {
	f.rolled = append(f.rolled, aws.ToString(in.TransactionId))
	return &rdsdata.RollbackTransactionOutput{}, nil
}

func TestField(t *testing.T) {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 789000000, time.FixedZone("x", 3600))

	tests := []struct {
		name  string
		in    statement.Value
		field rdstypes.Field
		hint  rdstypes.TypeHint
	}{
		{"null", statement.Null(), &rdstypes.FieldMemberIsNull{Value: true}, ""},
		{"text", statement.Text("a"), &rdstypes.FieldMemberStringValue{Value: "a"}, ""},
		{"integer", statement.Integer(3), &rdstypes.FieldMemberLongValue{Value: 3}, ""},
		{"float", statement.Float(1.5), &rdstypes.FieldMemberDoubleValue{Value: 1.5}, ""},
		{"bool", statement.Bool(true), &rdstypes.FieldMemberBooleanValue{Value: true}, ""},
		{"bytes", statement.Bytes([]byte{1}), &rdstypes.FieldMemberBlobValue{Value: []byte{1}}, ""},
		{"timestamp", statement.Timestamp(ts), &rdstypes.FieldMemberStringValue{Value: "2026-02-03 03:05:06.789"}, rdstypes.TypeHintTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, hint := Field(tt.in)
			assert.Equal(t, tt.field, field)
			assert.Equal(t, tt.hint, hint)
		})
	}
}

func TestValue(t *testing.T) {
	assert.Equal(t, "x", Value(&rdstypes.FieldMemberStringValue{Value: "x"}).AsText())
	assert.Equal(t, statement.KindInteger, Value(&rdstypes.FieldMemberLongValue{Value: 2}).Kind())
	assert.Equal(t, statement.KindFloat, Value(&rdstypes.FieldMemberDoubleValue{Value: 2}).Kind())
	assert.True(t, Value(&rdstypes.FieldMemberIsNull{Value: true}).IsNull())
	assert.True(t, Value(&rdstypes.FieldMemberArrayValue{}).IsNull())
}

func TestParametersAreSorted(t *testing.T) {
	params := Parameters(statement.Params{
		"b": statement.Text("2"),
		"a": statement.Text("1"),
	})
	require.Len(t, params, 2)
	assert.Equal(t, "a", aws.ToString(params[0].Name))
	assert.Equal(t, "b", aws.ToString(params[1].Name))

	assert.Nil(t, Parameters(nil))
}

func TestExecute(t *testing.T) {
	api := &fakeAPI{out: &rdsdata.ExecuteStatementOutput{
		ColumnMetadata: []rdstypes.ColumnMetadata{
			{Name: aws.String("entity_id")},
			{Name: aws.String("data"), Label: aws.String("data")},
			{Name: aws.String("version")},
			{Name: aws.String("expires")},
		},
		Records: [][]rdstypes.Field{{
			&rdstypes.FieldMemberStringValue{Value: "cfg/x"},
			&rdstypes.FieldMemberStringValue{Value: `{"v": 1}`},
			&rdstypes.FieldMemberLongValue{Value: 2},
			&rdstypes.FieldMemberStringValue{Value: "2026-02-03 04:05:06"},
		}},
		NumberOfRecordsUpdated: 1,
	}}
	exec := New(api, staticCreds{})

	stmt := statement.New("UPDATE entity SET version = version + 1 WHERE entity_id = :entity_id RETURNING entity_id").
		With("entity_id", statement.Text("cfg/x"))
	res, err := exec.Execute(context.Background(), stmt, "tx-1")
	require.NoError(t, err)

	require.Len(t, api.executes, 1)
	in := api.executes[0]
	assert.Equal(t, "arn:cluster", aws.ToString(in.ResourceArn))
	assert.Equal(t, "arn:secret", aws.ToString(in.SecretArn))
	assert.Equal(t, "entitystore", aws.ToString(in.Database))
	assert.Equal(t, "tx-1", aws.ToString(in.TransactionId))
	assert.True(t, in.IncludeResultMetadata)
	assert.Equal(t, stmt.SQL, aws.ToString(in.Sql))

	assert.Equal(t, int64(1), res.RowsAffected)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "cfg/x", row.Text("entity_id"))
	v, err := row.Integer("version")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	exp, err := row.Time("expires")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC), *exp)
}

func TestExecute_NoTransaction(t *testing.T) {
	api := &fakeAPI{}
	_, err := New(api, staticCreds{}).Execute(context.Background(), statement.New("SELECT 1"), "")
	require.NoError(t, err)
	assert.Nil(t, api.executes[0].TransactionId)
}

func TestExecute_TranslatesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "version trigger",
			err:  &smithy.GenericAPIError{Code: "BadRequestException", Message: "ERROR: entity version conflict; SQLState: 40001"},
			want: types.ErrConflict,
		},
		{
			name: "unique violation",
			err:  &rdstypes.BadRequestException{Message: aws.String(`ERROR: duplicate key value violates unique constraint "entity_pkey"`)},
			want: types.ErrConflict,
		},
		{
			name: "expired transaction",
			err:  &rdstypes.NotFoundException{Message: aws.String("Transaction tx-1 is not found")},
			want: types.ErrTransactionNotFound,
		},
		{
			name: "anything else",
			err:  &smithy.GenericAPIError{Code: "StatementTimeoutException", Message: "timeout"},
			want: types.ErrDatabase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{err: tt.err}
			_, err := New(api, staticCreds{}).Execute(context.Background(), statement.New("SELECT 1"), "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransactions(t *testing.T) {
	api := &fakeAPI{}
	exec := New(api, staticCreds{})
	ctx := context.Background()

	txID, err := exec.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tx-42", txID)

	require.NoError(t, exec.Commit(ctx, txID))
	require.NoError(t, exec.Rollback(ctx, "tx-43"))
	assert.Equal(t, []string{"tx-42"}, api.committed)
	assert.Equal(t, []string{"tx-43"}, api.rolled)
}

func TestEnsureSchema(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, New(api, staticCreds{}).EnsureSchema(context.Background()))
	assert.Len(t, api.executes, len(postgres.Schema))
	assert.Equal(t, statement.Postgres, New(api, staticCreds{}).Dialect())
}
