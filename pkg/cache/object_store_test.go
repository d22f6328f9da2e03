package cache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/datalab/pkg/json"
)

// objectStore is the shared state behind the fake S3 and GCS servers.
type objectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newObjectStore() *objectStore {
	return &objectStore{objects: make(map[string][]byte)}
}

func (o *objectStore) put(name string, data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[name] = data
}

func (o *objectStore) get(name string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[name]
	return data, ok
}

func (o *objectStore) remove(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[name]
	delete(o.objects, name)
	return ok
}

func (o *objectStore) list(prefix string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var names []string
	for name := range o.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// readAWSChunked decodes an aws-chunked body: hex sized chunks, optional
// chunk signatures and trailing checksum headers.
func readAWSChunked(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	var out bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size := strings.TrimSpace(line)
		if i := strings.IndexByte(size, ';'); i >= 0 {
			size = size[:i]
		}
		n, err := strconv.ParseInt(size, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chunk size %q", line)
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, n); err != nil {
			return nil, err
		}
		if _, err := br.ReadString('\n'); err != nil {
			return nil, err
		}
	}
}

type s3Contents struct {
	Key  string `xml:"Key"`
	Size int64  `xml:"Size"`
}

type s3ListResult struct {
	XMLName     xml.Name     `xml:"ListBucketResult"`
	Name        string       `xml:"Name"`
	Prefix      string       `xml:"Prefix"`
	KeyCount    int          `xml:"KeyCount"`
	IsTruncated bool         `xml:"IsTruncated"`
	Contents    []s3Contents `xml:"Contents"`
}

// newFakeS3 serves the path-style PutObject, GetObject, DeleteObject and
// ListObjectsV2 calls made by S3Backend.
func newFakeS3(t *testing.T, bucket string) (*httptest.Server, *objectStore) {
	store := newObjectStore()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/"+bucket)
		key := strings.TrimPrefix(rest, "/")
		if rest == r.URL.Path {
			http.Error(w, "no such bucket", http.StatusNotFound)
			return
		}

		switch {
		case r.Method == http.MethodGet && key == "":
			prefix := r.URL.Query().Get("prefix")
			res := s3ListResult{Name: bucket, Prefix: prefix}
			for _, name := range store.list(prefix) {
				data, _ := store.get(name)
				res.Contents = append(res.Contents, s3Contents{Key: name, Size: int64(len(data))})
			}
			res.KeyCount = len(res.Contents)
			w.Header().Set("Content-Type", "application/xml")
			_ = xml.NewEncoder(w).Encode(res)
		case r.Method == http.MethodPut:
			var data []byte
			var err error
			if strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") {
				data, err = readAWSChunked(r.Body)
			} else {
				data, err = io.ReadAll(r.Body)
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			store.put(key, data)
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet:
			data, ok := store.get(key)
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message><Key>%s</Key></Error>`, key)
				return
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			_, _ = w.Write(data)
		case r.Method == http.MethodDelete:
			store.remove(key)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "unsupported", http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, store
}

// isolateAWS keeps the SDK away from the developer's credentials and the
// instance metadata service.
func isolateAWS(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
}

func newTestS3Backend(t *testing.T) (*S3Backend, *objectStore) {
	isolateAWS(t)
	srv, objects := newFakeS3(t, "datalab")
	b, err := NewS3Backend(context.Background(), S3Options{
		Bucket:   "datalab",
		Prefix:   "/runs/",
		Region:   "us-east-1",
		Endpoint: srv.URL,
	})
	require.NoError(t, err)
	return b, objects
}

func TestS3Store(t *testing.T) {
	suite.Run(t, &StoreSuite{newBackend: func(t *testing.T) Backend {
		b, _ := newTestS3Backend(t)
		return b
	}})
}

func TestS3BackendKeysUnderPrefix(t *testing.T) {
	b, objects := newTestS3Backend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "a.dlc", []byte("payload")))
	objects.put("elsewhere/b.dlc", []byte("x"))

	data, ok := objects.get("runs/a.dlc")
	require.True(t, ok)
	assert.Equal(t, "payload", string(data))

	infos, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ObjectInfo{{Key: "a.dlc", Size: 7}}, infos)

	_, err = b.Get(ctx, "missing.dlc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewS3BackendRequiresBucket(t *testing.T) {
	_, err := NewS3Backend(context.Background(), S3Options{})
	assert.Error(t, err)
}

type gcsObject struct {
	Name   string `json:"name"`
	Bucket string `json:"bucket"`
	Size   string `json:"size"`
}

// newFakeGCS serves the JSON API upload, list and delete calls and the XML
// or JSON media reads made by GCSBackend through STORAGE_EMULATOR_HOST.
func newFakeGCS(t *testing.T, bucket string) *httptest.Server {
	store := newObjectStore()
	uploadPath := "/upload/storage/v1/b/" + bucket + "/o"
	listPath := "/storage/v1/b/" + bucket + "/o"

	notFound := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"No such object"}}`)
	}
	writeObject := func(w http.ResponseWriter, name string, size int) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(gcsObject{Name: name, Bucket: bucket, Size: strconv.Itoa(size)})
	}
	serveMedia := func(w http.ResponseWriter, name string) {
		data, ok := store.get(name)
		if !ok {
			notFound(w)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		switch {
		case r.Method == http.MethodPost && p == uploadPath:
			name, data, err := readMultipartUpload(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			store.put(name, data)
			writeObject(w, name, len(data))
		case r.Method == http.MethodGet && p == listPath:
			var items []gcsObject
			for _, name := range store.list(r.URL.Query().Get("prefix")) {
				data, _ := store.get(name)
				items = append(items, gcsObject{Name: name, Bucket: bucket, Size: strconv.Itoa(len(data))})
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"kind": "storage#objects", "items": items})
		case strings.HasPrefix(p, listPath+"/"):
			name := strings.TrimPrefix(p, listPath+"/")
			switch {
			case r.Method == http.MethodDelete:
				if !store.remove(name) {
					notFound(w)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			case r.URL.Query().Get("alt") == "media":
				serveMedia(w, name)
			default:
				data, ok := store.get(name)
				if !ok {
					notFound(w)
					return
				}
				writeObject(w, name, len(data))
			}
		case r.Method == http.MethodGet && strings.HasPrefix(p, "/"+bucket+"/"):
			serveMedia(w, strings.TrimPrefix(p, "/"+bucket+"/"))
		default:
			http.Error(w, "unsupported "+r.Method+" "+p, http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readMultipartUpload splits a multipart/related upload into the object name
// from the metadata part and the media part.
func readMultipartUpload(r *http.Request) (string, []byte, error) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", nil, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	meta, err := mr.NextPart()
	if err != nil {
		return "", nil, err
	}
	var obj gcsObject
	if err := json.NewDecoder(meta).Decode(&obj); err != nil {
		return "", nil, err
	}
	if obj.Name == "" {
		obj.Name = r.URL.Query().Get("name")
	}

	media, err := mr.NextPart()
	if err != nil {
		return "", nil, err
	}
	data, err := io.ReadAll(media)
	return obj.Name, data, err
}

func newTestGCSBackend(t *testing.T) *GCSBackend {
	srv := newFakeGCS(t, "datalab")
	t.Setenv("STORAGE_EMULATOR_HOST", srv.URL)
	b, err := NewGCSBackend(context.Background(), GCSOptions{Bucket: "datalab", Prefix: "runs"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestGCSStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newBackend: func(t *testing.T) Backend {
		return newTestGCSBackend(t)
	}})
}

func TestGCSBackendMissingObjects(t *testing.T) {
	b := newTestGCSBackend(t)
	ctx := context.Background()

	_, err := b.Get(ctx, "missing.dlc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, b.Delete(ctx, "missing.dlc"), ErrNotFound)

	require.NoError(t, b.Put(ctx, "a.dlc", []byte("payload")))
	infos, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ObjectInfo{{Key: "a.dlc", Size: 7}}, infos)
}

func TestNewGCSBackendRequiresBucket(t *testing.T) {
	_, err := NewGCSBackend(context.Background(), GCSOptions{})
	assert.Error(t, err)
}
