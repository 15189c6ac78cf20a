package testsupport

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// FakeS3 answers the path-style S3 calls made by the object store client:
// bucket HEAD/PUT and object HEAD/PUT.
type FakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]S3Object
}

// S3Object is what FakeS3 remembers about an uploaded object.
type S3Object struct {
	Size        int
	ContentType string
	Body        []byte
}

// NewFakeS3 starts the server and returns it with its host:port endpoint.
func NewFakeS3(t testing.TB) (*FakeS3, string) {
	t.Helper()
	f := &FakeS3{buckets: map[string]bool{}, objects: map[string]S3Object{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, strings.TrimPrefix(srv.URL, "http://")
}

func (f *FakeS3) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objectPath := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(objectPath, "/")
	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.Header().Set("Location", "/"+bucket)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
			body = decodeAWSChunked(body)
		}
		size, _ := strconv.Atoi(r.Header.Get("X-Amz-Decoded-Content-Length"))
		if size == 0 {
			size = len(body)
		}
		f.objects[objectPath] = S3Object{Size: size, ContentType: r.Header.Get("Content-Type"), Body: body}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead:
		obj, ok := f.objects[objectPath]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(obj.Size))
		w.Header().Set("Content-Type", obj.ContentType)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

// HasBucket reports whether name was created.
func (f *FakeS3) HasBucket(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[name]
}

// Object returns the object stored at bucket/key.
func (f *FakeS3) Object(path string) (S3Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[path]
	return obj, ok
}

// Keys lists stored object paths.
func (f *FakeS3) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys
}

// decodeAWSChunked strips the aws-chunked framing ("<hex>[;ext]\r\n<data>\r\n")
// from a streaming upload body.
func decodeAWSChunked(raw []byte) []byte {
	var out bytes.Buffer
	r := bufio.NewReader(bytes.NewReader(raw))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return out.Bytes()
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil || size == 0 {
			return out.Bytes()
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return out.Bytes()
		}
		_, _ = r.ReadString('\n')
	}
}
