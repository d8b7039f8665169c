package provenance

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	"github.com/jackc/pgx/v4"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/lsst-dm/legacy-ctrl-provenance/pkg/resolver"
)

// ID offsets assigned to a production run and to each of its activities.
// Every activity owns a block of 512 ids for its policy files and keys.
const (
	runIDIncr = 2097152
	activIncr = 512
)

func offsetToActivityID(runOffset, activOffset int64) int64 {
	return runOffset*runIDIncr + activOffset*activIncr
}

// DBConfig configures a DBRecorder.
type DBConfig struct {
	// RunID is the unique production run ID.
	RunID string

	// Activity names what provenance is recorded for: the production run
	// on the launch platform, the workflow on a workflow platform.
	Activity string

	// Platform is the logical name of the platform this recorder runs on.
	Platform string

	// RunURL points at the run-specific database, GlobalURL at the global
	// database shared by all production runs.
	RunURL    string
	GlobalURL string

	// ActivOffset is the workflow index assigned by the orchestration
	// layer; zero on the launch platform.
	ActivOffset int64

	// RunOffset is the database-assigned index of this run. Leave nil on
	// the launch platform; the run is then registered and the offset
	// assigned (retrievable via RunOffset()).
	RunOffset *int64

	// Packages is the resolved software environment to record.
	Packages []resolver.Product

	Logger zerolog.Logger
}

// database is the subset of pgx.Conn the recorder uses. Tests substitute
// a recording fake.
type database interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Close(ctx context.Context) error
}

// DBRecorder records provenance into the production database schema:
// runs, activities, software packages and policy files/keys.
type DBRecorder struct {
	cfg       DBConfig
	runDB     database
	globalDB  database
	runOffset int64

	policyFileID int64
	policyKeyID  int64
}

// NewDBRecorder connects to both databases and registers the run (if
// needed) and the activity.
func NewDBRecorder(ctx context.Context, cfg DBConfig) (*DBRecorder, error) {
	runDB, err := pgx.Connect(ctx, cfg.RunURL)
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to the run database")
	}

	globalDB, err := pgx.Connect(ctx, cfg.GlobalURL)
	if err != nil {
		runDB.Close(ctx)
		return nil, eris.Wrap(err, "failed to connect to the global database")
	}

	rec := &DBRecorder{
		cfg:      cfg,
		runDB:    runDB,
		globalDB: globalDB,
	}

	err = rec.initialize(ctx)
	if err != nil {
		rec.Close(ctx)
		return nil, err
	}

	return rec, nil
}

// RunOffset returns the database-assigned index of this run.
func (r *DBRecorder) RunOffset() int64 {
	return r.runOffset
}

// Close releases both database connections.
func (r *DBRecorder) Close(ctx context.Context) {
	if r.runDB != nil {
		r.runDB.Close(ctx)
	}
	if r.globalDB != nil {
		r.globalDB.Close(ctx)
	}
}

func (r *DBRecorder) initialize(ctx context.Context) error {
	actType := "workflow"
	if r.cfg.RunOffset == nil {
		actType = "launch"
		err := r.initProdRun(ctx)
		if err != nil {
			return err
		}
	} else {
		r.runOffset = *r.cfg.RunOffset
	}

	return r.initActivity(ctx, r.cfg.Activity, actType, r.cfg.Platform)
}

// initProdRun registers the production run via its runid and picks up the
// offset the database assigned to it.
func (r *DBRecorder) initProdRun(ctx context.Context) error {
	tx, err := r.globalDB.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to start a transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO prv_Run (runId) VALUES ($1)`, r.cfg.RunID)
	if err != nil {
		return eris.Wrapf(err, "failed to register runid %s", r.cfg.RunID)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to commit")
	}

	err = r.globalDB.QueryRow(ctx,
		`SELECT "offset" FROM prv_Run WHERE runId = $1`, r.cfg.RunID).Scan(&r.runOffset)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return eris.Errorf("failed to register runid %s", r.cfg.RunID)
		}
		return eris.Wrap(err, "failed to query the run offset")
	}

	r.cfg.Logger.Debug().Msgf("registered run %s with offset %d", r.cfg.RunID, r.runOffset)
	return nil
}

func (r *DBRecorder) initActivity(ctx context.Context, name, actType, platform string) error {
	activityID := offsetToActivityID(r.runOffset, r.cfg.ActivOffset)

	tx, err := r.globalDB.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to start a transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO prv_Activity (activityId, type, name, platform) VALUES ($1, $2, $3, $4)`,
		activityID, actType, name, platform)
	if err != nil {
		return eris.Wrapf(err, "failed to register activity %s", name)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to commit")
	}

	r.policyFileID = activityID + 1
	r.policyKeyID = activityID + 1
	return nil
}

// RecordEnv records the resolved software environment into the global
// database.
func (r *DBRecorder) RecordEnv(ctx context.Context) error {
	tx, err := r.globalDB.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to start a transaction")
	}
	defer tx.Rollback(ctx)

	id := offsetToActivityID(r.runOffset, r.cfg.ActivOffset) + 1
	for _, product := range r.cfg.Packages {
		_, err = tx.Exec(ctx,
			`INSERT INTO prv_SoftwarePackage (packageId, packageName) VALUES ($1, $2)`,
			id, product.Name)
		if err != nil {
			return eris.Wrapf(err, "failed to record package %s", product.Name)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO prv_cnf_SoftwarePackage (packageId, version, directory) VALUES ($1, $2, $3)`,
			id, product.Version, product.Dir)
		if err != nil {
			return eris.Wrapf(err, "failed to record package %s", product.Name)
		}

		id++
	}

	return tx.Commit(ctx)
}

// Record records the given policy file: the file itself (hash and
// modification date) plus every key it contains.
func (r *DBRecorder) Record(ctx context.Context, filename string) error {
	digest, err := hashFile(filename)
	if err != nil {
		return err
	}

	info, err := os.Stat(filename)
	if err != nil {
		return eris.Wrapf(err, "failed to check %s", filename)
	}

	tx, err := r.globalDB.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to start a transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO prv_PolicyFile (policyFileId, pathname, hashValue, modifiedDate) VALUES ($1, $2, $3, $4)`,
		r.policyFileID, filename, digest, info.ModTime().UTC().UnixNano())
	if err != nil {
		return eris.Wrapf(err, "failed to record policy file %s", filename)
	}

	policy, err := LoadPolicy(filename)
	if err != nil {
		return err
	}

	for _, param := range policy.Params() {
		_, err = tx.Exec(ctx,
			`INSERT INTO prv_PolicyKey (policyKeyId, policyFileId, keyName, keyType) VALUES ($1, $2, $3, $4)`,
			r.policyKeyID, r.policyFileID, param.Name, param.Type)
		if err != nil {
			return eris.Wrapf(err, "failed to record key %s", param.Name)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO prv_cnf_PolicyKey (policyKeyId, value) VALUES ($1, $2)`,
			r.policyKeyID, param.Value)
		if err != nil {
			return eris.Wrapf(err, "failed to record key %s", param.Name)
		}

		r.policyKeyID++
	}

	r.policyFileID++
	return tx.Commit(ctx)
}

func hashFile(filename string) (string, error) {
	handle, err := os.Open(filename)
	if err != nil {
		return "", eris.Wrapf(err, "failed to open %s", filename)
	}
	defer handle.Close()

	hash := md5.New()
	_, err = io.Copy(hash, handle)
	if err != nil {
		return "", eris.Wrapf(err, "failed to hash %s", filename)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
