package provenance

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-dm/legacy-ctrl-provenance/pkg/resolver"
)

type recordedStmt struct {
	sql  string
	args []interface{}
}

type fakeDB struct {
	stmts []recordedStmt
}

func (db *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: db}, nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return fakeRow{}
}

func (db *fakeDB) Close(ctx context.Context) error {
	return nil
}

type fakeRow struct{}

func (fakeRow) Scan(dest ...interface{}) error { return nil }

type fakeTx struct {
	db *fakeDB
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) BeginFunc(ctx context.Context, f func(pgx.Tx) error) error {
	return f(t)
}
func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	t.db.stmts = append(t.db.stmts, recordedStmt{sql: sql, args: args})
	return nil, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return fakeRow{}
}
func (t *fakeTx) QueryFunc(ctx context.Context, sql string, args []interface{}, scans []interface{}, f func(pgx.QueryFuncRow) error) (pgconn.CommandTag, error) {
	return nil, nil
}
func (t *fakeTx) Conn() *pgx.Conn { return nil }

func TestRecordEnvTargetsGlobalDB(t *testing.T) {
	runDB := &fakeDB{}
	globalDB := &fakeDB{}
	rec := &DBRecorder{
		cfg: DBConfig{
			Packages: []resolver.Product{
				{Name: "pex_policy", Version: "3.5", Dir: "/stack/pex_policy/3.5"},
				{Name: "pex_logging", Version: "2.1", Dir: "/stack/pex_logging/2.1"},
			},
			Logger: zerolog.Nop(),
		},
		runDB:    runDB,
		globalDB: globalDB,
	}

	err := rec.RecordEnv(context.Background())
	require.NoError(t, err)

	assert.Empty(t, runDB.stmts, "the software environment lives in the global database")
	require.Len(t, globalDB.stmts, 4)
	assert.Contains(t, globalDB.stmts[0].sql, "prv_SoftwarePackage")
	assert.Equal(t, "pex_policy", globalDB.stmts[0].args[1])
	assert.Contains(t, globalDB.stmts[1].sql, "prv_cnf_SoftwarePackage")
	assert.Contains(t, globalDB.stmts[2].sql, "prv_SoftwarePackage")
	assert.Equal(t, "pex_logging", globalDB.stmts[2].args[1])
}

func TestRecordPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	writePolicy(t, path, "a: 1\nb: two\n")

	globalDB := &fakeDB{}
	rec := &DBRecorder{
		globalDB:     globalDB,
		policyFileID: 10,
		policyKeyID:  10,
	}

	err := rec.Record(context.Background(), path)
	require.NoError(t, err)

	// one file record plus a key/value pair per parameter
	require.Len(t, globalDB.stmts, 5)
	assert.Contains(t, globalDB.stmts[0].sql, "prv_PolicyFile")
	assert.Contains(t, globalDB.stmts[1].sql, "prv_PolicyKey")
	assert.Contains(t, globalDB.stmts[2].sql, "prv_cnf_PolicyKey")

	assert.Equal(t, int64(11), rec.policyFileID)
	assert.Equal(t, int64(12), rec.policyKeyID)
}
