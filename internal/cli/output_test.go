package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/d60-Lab/postsync/internal/remote"
	"github.com/d60-Lab/postsync/internal/store"
	"github.com/d60-Lab/postsync/internal/syncclient"
)

var jst = time.FixedZone("JST", 9*60*60)

func fixturePosts() []store.Post {
	return []store.Post{
		{ID: store.NumericID(1), Content: "hello", CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)},
		{ID: store.StringID("a2"), Content: "multi\nline", CreatedAt: time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)},
		{ID: store.NumericID(3), Content: ""},
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestOutputFormatter_TextGolden(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf, Location: jst}

	require.NoError(t, f.Posts(fixturePosts()))
	newGoldie(t).Assert(t, "posts_text", buf.Bytes())
}

func TestOutputFormatter_JSONGolden(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf, Location: jst}

	require.NoError(t, f.Posts(fixturePosts()))
	newGoldie(t).Assert(t, "posts_json", buf.Bytes())
}

func TestOutputFormatter_TextEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Posts(nil))
	assert.Equal(t, "No posts.\n", buf.String())
}

func TestOutputFormatter_YAML(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "yaml", Writer: buf, Location: time.UTC}

	require.NoError(t, f.Posts(fixturePosts()[:2]))

	var resp struct {
		Status string `yaml:"status"`
		Data   []struct {
			ID        any    `yaml:"id"`
			Content   string `yaml:"content"`
			CreatedAt string `yaml:"created_at"`
		} `yaml:"data"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &resp), buf.String())
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, 1, resp.Data[0].ID)
	assert.Equal(t, "a2", resp.Data[1].ID)
	assert.Equal(t, "multi\nline", resp.Data[1].Content)
	assert.Equal(t, "2024-05-01T09:30:00Z", resp.Data[0].CreatedAt)
}

func TestOutputFormatter_YAMLEmptyCollection(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "yaml", Writer: buf}

	require.NoError(t, f.Posts(nil))
	assert.Equal(t, "status: ok\ndata: []\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

	require.NoError(t, f.Error(CodeUsage, "bad input"))
	assert.Empty(t, out.String())
	assert.Equal(t, "Error [usage]: bad input\n", errOut.String())
}

func TestOutputFormatter_JSONSyncError(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	err := &syncclient.SyncError{
		Op:   remote.OpDelete,
		ID:   store.NumericID(9),
		Kind: syncclient.KindServer,
		Err:  &remote.ServerError{Op: remote.OpDelete, StatusCode: 500, Message: "boom"},
	}
	require.NoError(t, f.SyncError(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "server", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "boom")
}

func TestOutputFormatter_LineSkippedForStructuredFormats(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}
	f.Line("hello %d", 1)
	assert.Empty(t, buf.String())

	f.Format = "text"
	f.Line("hello %d", 1)
	assert.Equal(t, "hello 1\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	f.VerboseLog("quiet")
	assert.Empty(t, errOut.String())

	f.Verbose = true
	f.VerboseLog("loaded %d", 2)
	assert.Equal(t, "loaded 2\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "x")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", errors.New("y"))))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("unknown flag")))
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "x", NewExitError(1, "x").Error())
	assert.Equal(t, "x: y", WrapExitError(1, "x", errors.New("y")).Error())
	assert.Equal(t, "y", reportedError(1, errors.New("y")).Error())
}
