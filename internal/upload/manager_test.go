package upload

import (
	"bytes"
	"compress/gzip"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i72421/pm-graph/internal/storage"
)

const dmesgSample = `# suspend-050216-100455 tbird mem
[    1.000000] PM: Syncing filesystems ... done.
[    1.100000] Freezing user space processes ... (elapsed 0.001 seconds) done.
[    1.200000] PM: Entering mem sleep
`

func newTestManager(t *testing.T) (*Manager, *storage.LocalStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return NewManager(store), store
}

func waitForJob(t *testing.T, m *Manager, id string) *Job {
	t.Helper()
	require.Eventually(t, func() bool {
		job, ok := m.GetJob(id)
		return ok && (job.Status == StatusComplete || job.Status == StatusError)
	}, 5*time.Second, 10*time.Millisecond)
	job, _ := m.GetJob(id)
	return job
}

func TestJobAssemblesChunksAndDetectsKind(t *testing.T) {
	m, store := newTestManager(t)

	half := len(dmesgSample) / 2
	require.NoError(t, store.SaveChunk("up-1", 0, strings.NewReader(dmesgSample[:half])))
	require.NoError(t, store.SaveChunk("up-1", 1, strings.NewReader(dmesgSample[half:])))

	job := waitForJob(t, m, m.StartJob("up-1", "dmesg.txt", 2, 0, 0, "").ID)

	require.Equal(t, StatusComplete, job.Status)
	assert.Equal(t, float64(100), job.Progress)
	require.NotNil(t, job.FileInfo)
	assert.Equal(t, "dmesg", job.FileInfo.Kind)
	assert.Equal(t, int64(len(dmesgSample)), job.FileInfo.Size)

	info, err := store.Get(job.FileInfo.ID)
	require.NoError(t, err)
	assert.Equal(t, "dmesg", info.Kind)
}

func TestJobDecompressesGzip(t *testing.T) {
	m, store := newTestManager(t)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(dmesgSample))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	require.NoError(t, store.SaveChunk("up-gz", 0, &buf))

	job := waitForJob(t, m,
		m.StartJob("up-gz", "dmesg.txt.gz", 1, int64(len(dmesgSample)), int64(buf.Len()), "gzip").ID)

	require.Equal(t, StatusComplete, job.Status)
	require.NotNil(t, job.FileInfo)
	assert.Equal(t, int64(len(dmesgSample)), job.FileInfo.Size)
	assert.Equal(t, "dmesg", job.FileInfo.Kind)

	path, err := store.GetFilePath(job.FileInfo.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, dmesgSample, string(data))
}

func TestJobKeepsFileWhenNotActuallyGzip(t *testing.T) {
	m, store := newTestManager(t)

	require.NoError(t, store.SaveChunk("up-plain", 0, strings.NewReader(dmesgSample)))

	job := waitForJob(t, m,
		m.StartJob("up-plain", "dmesg.txt", 1, int64(len(dmesgSample)), 0, "gzip").ID)

	require.Equal(t, StatusComplete, job.Status)
	require.NotNil(t, job.FileInfo)
	assert.Equal(t, "dmesg", job.FileInfo.Kind)
}

func TestJobFailsOnMissingChunks(t *testing.T) {
	m, store := newTestManager(t)

	require.NoError(t, store.SaveChunk("up-short", 0, strings.NewReader("only one chunk")))

	job := waitForJob(t, m, m.StartJob("up-short", "broken.txt", 3, 0, 0, "").ID)

	require.Equal(t, StatusError, job.Status)
	assert.NotEmpty(t, job.Error)
	assert.Nil(t, job.FileInfo)
}

func TestCleanupOldJobs(t *testing.T) {
	m, store := newTestManager(t)

	require.NoError(t, store.SaveChunk("up-old", 0, strings.NewReader(dmesgSample)))
	job := waitForJob(t, m, m.StartJob("up-old", "dmesg.txt", 1, 0, 0, "").ID)
	require.Equal(t, StatusComplete, job.Status)

	time.Sleep(20 * time.Millisecond)
	m.CleanupOldJobs(time.Nanosecond)

	_, ok := m.GetJob(job.ID)
	assert.False(t, ok)
}
