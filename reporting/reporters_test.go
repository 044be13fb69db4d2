package reporting

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minio/minio-go/v7"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

func TestJSONReporter(t *testing.T) {
	dir := t.TempDir()
	r := NewJSONReporter()
	r.SetOutputDirectory(dir)

	require.NoError(t, r.GenerateReportFor(context.Background(), finalizedRun()))

	data, err := os.ReadFile(filepath.Join(dir, "run-1.json"))
	require.NoError(t, err)

	var report ReportData
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, types.RunStatusFailed, report.Status)
	require.Len(t, report.Steps, 3)
	assert.Equal(t, "card declined", report.Steps[1].Error)
	assert.Equal(t, 1, report.Stats.Failed)
}

func TestFileReporter_NoOutputDirectory(t *testing.T) {
	r := NewJSONReporter()
	assert.Error(t, r.GenerateReportFor(context.Background(), finalizedRun()))
}

func TestTextReporter(t *testing.T) {
	dir := t.TempDir()
	r := NewTextReporter()
	r.SetOutputDirectory(dir)

	require.NoError(t, r.GenerateReportFor(context.Background(), finalizedRun()))

	data, err := os.ReadFile(filepath.Join(dir, "run-1.log"))
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, "\x1b[", "log files must not contain ANSI escapes")
	assert.Contains(t, content, "checkout")
	assert.Contains(t, content, "FAILED")
	assert.Contains(t, content, "SKIPPED")
	assert.Contains(t, content, "card declined")
}

func TestHTMLReporter(t *testing.T) {
	dir := t.TempDir()
	r, err := NewHTMLReporter()
	require.NoError(t, err)
	r.SetOutputDirectory(dir)

	run := finalizedRun()
	run.Parameters = map[string]string{"lang": "<en>"}
	require.NoError(t, r.GenerateReportFor(context.Background(), run))

	data, err := os.ReadFile(filepath.Join(dir, "run-1.html"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "<title>checkout - failed</title>")
	assert.Contains(t, content, `class="failed"`)
	assert.Contains(t, content, "card declined")
	assert.Contains(t, content, "&lt;en&gt;")
}

func TestJUnitReporter(t *testing.T) {
	dir := t.TempDir()
	r := NewJUnitReporter()
	r.SetOutputDirectory(dir)

	run := finalizedRun()
	run.Steps = append(run.Steps, types.StepResult{Name: "later", Position: 3, Status: types.StepStatusPending})
	require.NoError(t, r.GenerateReportFor(context.Background(), run))

	data, err := os.ReadFile(filepath.Join(dir, "TEST-run-1.xml"))
	require.NoError(t, err)

	var suites junitTestSuites
	require.NoError(t, xml.Unmarshal(data, &suites))
	require.Len(t, suites.Suites, 1)
	suite := suites.Suites[0]
	assert.Equal(t, 4, suite.Tests)
	assert.Equal(t, 1, suite.Failures)
	assert.Equal(t, 2, suite.Skipped)
	require.Len(t, suite.Cases, 4)
	require.NotNil(t, suite.Cases[1].Failure)
	assert.Contains(t, suite.Cases[1].Failure.Body, "card declined")
	assert.NotNil(t, suite.Cases[2].Skipped)
	assert.Equal(t, "pending", suite.Cases[3].Skipped.Message)
}

func TestBuildReport_SetupError(t *testing.T) {
	run := &types.Run{
		ID:         "run-2",
		Title:      "login",
		Instance:   "admin",
		Status:     types.RunStatusFailed,
		SetupError: errors.New("no fixtures"),
		Steps:      []types.StepResult{{Name: "a", Status: types.StepStatusSkipped}},
	}
	report := BuildReport(run)
	assert.Equal(t, "login [admin]", report.DisplayName)
	assert.Equal(t, "no fixtures", report.SetupError)
	assert.True(t, report.HasFailures)
	assert.Equal(t, "0.0", report.PassRateText)
}

// fakeTx records statements executed inside a transaction
type fakeTx struct {
	pgx.Tx
	execs     []string
	args      [][]any
	failOn    string
	committed bool
}

func (f *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("relation does not exist")
	}
	f.execs = append(f.execs, strings.TrimSpace(sql))
	f.args = append(f.args, arguments)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return f.tx, nil
}

func TestPostgresReporter(t *testing.T) {
	tx := &fakeTx{}
	r := NewPostgresReporter(&fakeDB{tx: tx})
	r.SetOutputDirectory("ignored")

	require.NoError(t, r.GenerateReportFor(context.Background(), finalizedRun()))
	assert.True(t, tx.committed)
	// upsert run, clear steps, one insert per step
	require.Len(t, tx.execs, 5)
	assert.True(t, strings.HasPrefix(tx.execs[0], "INSERT INTO narrator_runs"))
	assert.True(t, strings.HasPrefix(tx.execs[1], "DELETE FROM narrator_steps"))
	assert.Equal(t, "run-1", tx.args[0][0])
	assert.Equal(t, "failed", tx.args[0][3])

	// second step carries its error, the first has none
	assert.Nil(t, tx.args[2][5])
	assert.Equal(t, "card declined", tx.args[3][5])
}

func TestPostgresReporter_RollsBackOnError(t *testing.T) {
	tx := &fakeTx{failOn: "narrator_steps (run_id"}
	r := NewPostgresReporter(&fakeDB{tx: tx})

	err := r.GenerateReportFor(context.Background(), finalizedRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert step 0")
	assert.False(t, tx.committed)
}

type fakePublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestAMQPReporter(t *testing.T) {
	pub := &fakePublisher{}
	r := NewAMQPReporter(pub, "narrator")

	require.NoError(t, r.GenerateReportFor(context.Background(), finalizedRun()))
	assert.Equal(t, "narrator", pub.exchange)
	assert.Equal(t, "narrator.run.failed", pub.key)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, "run-1", pub.msg.CorrelationId)

	var report ReportData
	require.NoError(t, json.Unmarshal(pub.msg.Body, &report))
	assert.Equal(t, "run-1", report.RunID)

	pub.err = errors.New("channel closed")
	err := r.GenerateReportFor(context.Background(), finalizedRun())
	assert.ErrorContains(t, err, "publish to narrator/narrator.run.failed")
}

type fakePutter struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakePutter) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucketName+"/"+objectName] = data
	f.types[bucketName+"/"+objectName] = opts.ContentType
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func TestS3Reporter(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "01-pay.html")
	require.NoError(t, os.WriteFile(artifact, []byte("<html>declined</html>"), 0644))

	run := finalizedRun()
	run.Steps[1].Artifact = artifact

	putter := &fakePutter{objects: map[string][]byte{}, types: map[string]string{}}
	r := NewS3Reporter(putter, "reports", "narrator")
	require.NoError(t, r.GenerateReportFor(context.Background(), run))

	require.Contains(t, putter.objects, "reports/narrator/run-1/report.json")
	assert.Equal(t, "application/json", putter.types["reports/narrator/run-1/report.json"])
	assert.Equal(t, "<html>declined</html>", string(putter.objects["reports/narrator/run-1/artifacts/01-pay.html"]))

	run.Steps[1].Artifact = filepath.Join(t.TempDir(), "missing.html")
	assert.Error(t, r.GenerateReportFor(context.Background(), run))
}

func TestS3Config_Validate(t *testing.T) {
	assert.Error(t, S3Config{}.Validate())
	assert.Error(t, S3Config{Endpoint: "localhost:9000"}.Validate())
	assert.NoError(t, S3Config{Endpoint: "localhost:9000", Bucket: "b"}.Validate())
}
