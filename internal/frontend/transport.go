package frontend

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// NewOriginTransport returns the base URL that site paths resolve against and
// the transport that reaches the origin.
//
// http and https origins use network as-is. A file:// origin serves the
// directory it names in-process: its base URL is "file:///" and paths map to
// files below that directory.
func NewOriginTransport(origin *url.URL, network http.RoundTripper) (*url.URL, http.RoundTripper) {
	if origin.Scheme != "file" {
		return origin, network
	}
	root := filepath.FromSlash(origin.Path)
	return &url.URL{Scheme: "file", Path: "/"}, &Transport{Handler: NewSiteHandler(os.DirFS(root))}
}

// Transport answers requests by calling Handler directly.
type Transport struct {
	Handler http.Handler
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := &recorder{header: http.Header{}}
	t.Handler.ServeHTTP(rec, req)
	return rec.response(req), nil
}

// recorder is a minimal in-memory http.ResponseWriter.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.body.Write(p)
}

func (r *recorder) response(req *http.Request) *http.Response {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	length := int64(r.body.Len())
	if req.Method == http.MethodHead {
		length = -1
		if v, err := strconv.ParseInt(r.header.Get("Content-Length"), 10, 64); err == nil {
			length = v
		}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.header,
		Body:          io.NopCloser(bytes.NewReader(r.body.Bytes())),
		ContentLength: length,
		Request:       req,
	}
}
