package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/broker"
	"github.com/houseofcat/rabbitreader/broker/brokertest"
	"github.com/houseofcat/rabbitreader/models"
)

const readerYAML = `name: orders
host: localhost
port: 5672
vhost: /
queue: orders
timeout: 1
log:
  level: error
state:
  path: %s
`

func writeConfig(t *testing.T, content string) string {

	dir := t.TempDir()
	path := filepath.Join(dir, "reader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func useDialer(t *testing.T, dialer broker.Dialer) {

	previous := newDialer
	newDialer = func(*zap.Logger) broker.Dialer { return dialer }
	t.Cleanup(func() { newDialer = previous })
}

func run(t *testing.T, args ...string) (string, error) {

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rabbitreader version dev")
}

func TestVerifyCommand(t *testing.T) {

	path := writeConfig(t, fmt.Sprintf(readerYAML, filepath.Join(t.TempDir(), "state.db")))

	out, err := run(t, "verify", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration ok")
	assert.Contains(t, out, `"orders"`)
}

func TestVerifyCommandMissingKey(t *testing.T) {

	path := writeConfig(t, "host: localhost\nport: 5672\nvhost: /\n")

	_, err := run(t, "verify", "--config", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
	assert.Contains(t, err.Error(), "queue")
}

func TestConsumeAndStateCommands(t *testing.T) {

	statePath := filepath.Join(t.TempDir(), "state.db")
	path := writeConfig(t, fmt.Sprintf(readerYAML, statePath))

	dialer := brokertest.NewFakeDialer()
	useDialer(t, dialer)

	dialer.Publish([]byte(`{"id":1}`))
	dialer.Publish([]byte(`[]`))
	dialer.Publish([]byte(`{"id":2}`))

	out, err := run(t, "consume", "--config", path, "--stop-on-idle")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{`{"id":1}`, `{"id":2}`}, lines)
	assert.Equal(t, []uint64{1, 2, 3}, dialer.Acker.Acks())

	out, err = run(t, "state", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "reader: orders")
	assert.Contains(t, out, "current_file: \n")
	assert.Contains(t, out, "processed_count: 2")
	assert.Contains(t, out, "failed_count: 0")

	out, err = run(t, "state", "--config", path, "--reset")
	require.NoError(t, err)
	assert.Contains(t, out, "state reset for orders")

	out, err = run(t, "state", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "processed_count: 0")
}

func TestConsumeMaxRecords(t *testing.T) {

	path := writeConfig(t, fmt.Sprintf(readerYAML, ""))

	dialer := brokertest.NewFakeDialer()
	useDialer(t, dialer)

	for i := 1; i <= 3; i++ {
		dialer.Publish([]byte(fmt.Sprintf(`{"id":%d}`, i)))
	}

	out, err := run(t, "consume", "--config", path, "--max-records", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, 1, dialer.Pending())
}

func TestConsumeUnreachableBroker(t *testing.T) {

	path := writeConfig(t, fmt.Sprintf(readerYAML, ""))

	dialer := brokertest.NewFakeDialer()
	dialer.Fail(brokertest.StageDial, errors.New("connection refused"))
	useDialer(t, dialer)

	_, err := run(t, "consume", "--config", path, "--stop-on-idle")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConnection))
	assert.Equal(t, models.ConnectionError, models.KindOf(err))
	assert.Contains(t, err.Error(), "can't read source")
	assert.Contains(t, err.Error(), "during dial")
	assert.Contains(t, err.Error(), "connection refused")
}
