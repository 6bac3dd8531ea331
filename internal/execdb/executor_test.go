package execdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockExecutor(t *testing.T, opts Options) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, "sales", opts), mock
}

func TestQueryReturnsRows(t *testing.T) {
	e, mock := newMockExecutor(t, Options{})

	mock.ExpectQuery("SELECT region, revenue FROM sales WHERE client_id = 5").
		WillReturnRows(sqlmock.NewRows([]string{"region", "revenue"}).
			AddRow("West", 1200.5).
			AddRow("East", 980.0))

	res, err := e.Query(context.Background(), "SELECT region, revenue FROM sales WHERE client_id = 5")
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "revenue"}, res.Columns)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, "West", res.Rows[0]["region"])
	assert.Equal(t, 1200.5, res.Rows[0]["revenue"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryCapsRows(t *testing.T) {
	e, mock := newMockExecutor(t, Options{MaxRows: 2})

	rows := sqlmock.NewRows([]string{"n"})
	for i := 0; i < 5; i++ {
		rows.AddRow(i)
	}
	mock.ExpectQuery("SELECT n FROM t WHERE client_id = 1").WillReturnRows(rows)

	res, err := e.Query(context.Background(), "SELECT n FROM t WHERE client_id = 1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
}

func TestQueryFriendlyErrors(t *testing.T) {
	tests := []struct {
		driverErr error
		wantHint  string
		wantRaw   string
	}{
		{errors.New("no such table: foo"), "database table not found", "no such table: foo"},
		{errors.New("no such column: bar"), "column not found", "no such column: bar"},
		{errors.New(`near "SELEC": syntax error`), "SQL syntax error", "syntax error"},
		{errors.New("disk I/O error"), "query execution failed", "disk I/O error"},
	}

	for _, tt := range tests {
		e, mock := newMockExecutor(t, Options{})
		mock.ExpectQuery("SELECT 1").WillReturnError(tt.driverErr)

		_, err := e.Query(context.Background(), "SELECT 1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), tt.wantHint)
		// The raw driver message must survive for error classification.
		assert.Contains(t, err.Error(), tt.wantRaw)
	}
}

func TestQueryConvertsBytes(t *testing.T) {
	e, mock := newMockExecutor(t, Options{})

	mock.ExpectQuery("SELECT name FROM products WHERE client_id = 5").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow([]byte("Le Creuset")))

	res, err := e.Query(context.Background(), "SELECT name FROM products WHERE client_id = 5")
	require.NoError(t, err)
	assert.Equal(t, "Le Creuset", res.Rows[0]["name"])
}

func TestTestConnection(t *testing.T) {
	e, mock := newMockExecutor(t, Options{})
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	assert.NoError(t, e.TestConnection(context.Background()))
}

func TestListTenants(t *testing.T) {
	e, mock := newMockExecutor(t, Options{})
	mock.ExpectQuery("SELECT client_id, client_name, industry FROM clients ORDER BY client_name").
		WillReturnRows(sqlmock.NewRows([]string{"client_id", "client_name", "industry"}).
			AddRow(int64(5), "Walmart", "Retail").
			AddRow(int64(7), "Zeiss", "Optics"))

	tenants, err := e.ListTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, Tenant{ID: 5, Name: "Walmart", Industry: "Retail"}, tenants[0])
}

func TestQueryTimeoutOption(t *testing.T) {
	e, mock := newMockExecutor(t, Options{QueryTimeout: 10 * time.Millisecond})
	mock.ExpectQuery("SELECT 1").WillDelayFor(100 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	_, err := e.Query(context.Background(), "SELECT 1")
	assert.Error(t, err)
}
