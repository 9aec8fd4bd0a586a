package tests

import (
	"bytes"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ordalo/filepress/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	return out
}

func TestUploadGoldenPath(t *testing.T) {
	cfg := TestConfig(t)
	app, err := server.NewApp(server.AppDependencies{
		Config: cfg,
		Runner: &FakeRunner{},
	})
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("z"), 500)
	req := UploadRequest(t, "/v1/files/misc", "notes.zip", payload, nil, nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(500), body["size"])
	name, _ := body["name"].(string)
	require.NotEmpty(t, name)
	assert.Equal(t, ".zip", filepath.Ext(name))

	// Stored file is served back through the public path
	dlReq, err := http.NewRequest(http.MethodGet, body["url"].(string), nil)
	require.NoError(t, err)
	dlResp, err := app.Test(dlReq, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, dlResp.StatusCode)
	data, err := io.ReadAll(dlResp.Body)
	dlResp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	// And shows up in the listing
	listReq, err := http.NewRequest(http.MethodGet, "/v1/files/misc", nil)
	require.NoError(t, err)
	listResp, err := app.Test(listReq, 30000)
	require.NoError(t, err)
	listBody := decodeBody(t, listResp)
	files, _ := listBody["files"].([]interface{})
	require.Len(t, files, 1)
}

func TestUploadImageCompressed(t *testing.T) {
	cfg := TestConfig(t)
	app, err := server.NewApp(server.AppDependencies{
		Config: cfg,
		Runner: &FakeRunner{},
	})
	require.NoError(t, err)

	original := NoisyJPEG(t, 2600, 1800)
	req := UploadRequest(t, "/v1/files/images", "photo.jpg", original, nil, nil)
	resp, err := app.Test(req, 60000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	size := int64(body["size"].(float64))
	assert.Less(t, size, int64(len(original)))
	assert.LessOrEqual(t, size, cfg.Compression.Budgets.Image)
}

func TestUploadGifStoredAsJpeg(t *testing.T) {
	cfg := TestConfig(t)
	app, err := server.NewApp(server.AppDependencies{
		Config: cfg,
		Runner: &FakeRunner{},
	})
	require.NoError(t, err)

	req := UploadRequest(t, "/v1/files/images", "anim.gif", FlatGIF(t, 40, 30), map[string]string{"filename": "anim.gif"}, nil)
	resp, err := app.Test(req, 60000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The encoder only emits JPEG for lossy formats, so the stored name and
	// url must carry the .jpg extension and the bytes must match it
	body := decodeBody(t, resp)
	assert.Equal(t, "anim.jpg", body["name"])
	assert.Equal(t, "/files/images/anim.jpg", body["url"])

	f, err := os.Open(filepath.Join(cfg.Storage.DataDir, "images", "anim.jpg"))
	require.NoError(t, err)
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestUploadOtherOverBudgetRejected(t *testing.T) {
	cfg := TestConfig(t)
	app, err := server.NewApp(server.AppDependencies{
		Config: cfg,
		Runner: &FakeRunner{},
	})
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("z"), int(cfg.Compression.Budgets.Other)+1)
	req := UploadRequest(t, "/v1/files/misc", "big.zip", payload, map[string]string{"filename": "big.zip"}, nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["success"])

	// Rejected upload leaves nothing on disk
	_, err = os.Stat(filepath.Join(cfg.Storage.DataDir, "misc", "big.zip"))
	assert.True(t, os.IsNotExist(err))
}

func TestUploadPDFThroughFakeTool(t *testing.T) {
	cfg := TestConfig(t)
	optimized := bytes.Repeat([]byte("o"), 1000)
	app, err := server.NewApp(server.AppDependencies{
		Config: cfg,
		Runner: &FakeRunner{OutputBytes: optimized},
	})
	require.NoError(t, err)

	original := bytes.Repeat([]byte("p"), 3000)
	req := UploadRequest(t, "/v1/files/documents", "report.pdf", original, nil, nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(1000), body["size"])
}

func TestUploadUnknownFolder(t *testing.T) {
	cfg := TestConfig(t)
	app, err := server.NewApp(server.AppDependencies{
		Config: cfg,
		Runner: &FakeRunner{},
	})
	require.NoError(t, err)

	req := UploadRequest(t, "/v1/files/secrets", "x.zip", []byte("x"), nil, nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIKeyEnforced(t *testing.T) {
	cfg := TestConfig(t)
	cfg.Server.APIKeys = []string{"sekrit"}
	app, err := server.NewApp(server.AppDependencies{
		Config: cfg,
		Runner: &FakeRunner{},
	})
	require.NoError(t, err)

	req := UploadRequest(t, "/v1/files/misc", "a.zip", []byte("a"), nil, nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = UploadRequest(t, "/v1/files/misc", "a.zip", []byte("a"), nil, map[string]string{"X-API-Key": "sekrit"})
	resp, err = app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIdempotentReplay(t *testing.T) {
	cfg := TestConfig(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	app, err := server.NewApp(server.AppDependencies{
		Config:      cfg,
		RedisClient: redisClient,
		Runner:      &FakeRunner{},
	})
	require.NoError(t, err)

	headers := map[string]string{"X-Correlation-ID": "upload-123"}
	req := UploadRequest(t, "/v1/files/misc", "a.zip", []byte("payload"), nil, headers)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decodeBody(t, resp)

	// Response caching is fire-and-forget; wait for the key to land
	require.Eventually(t, func() bool {
		return len(mr.Keys()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	req = UploadRequest(t, "/v1/files/misc", "a.zip", []byte("payload"), nil, headers)
	resp, err = app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Idempotent-Replay"))
	second := decodeBody(t, resp)
	assert.Equal(t, first["name"], second["name"], "replayed response must match the original")
}
