package core

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pngBytes returns a w x h PNG filled with c.
func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// icoWithPNG wraps a PNG payload in a single-entry icon directory.
func icoWithPNG(payload []byte, size int) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&buf, le, uint16(0))
	_ = binary.Write(&buf, le, uint16(1))
	_ = binary.Write(&buf, le, uint16(1))
	dim := byte(size)
	if size >= 256 {
		dim = 0
	}
	buf.Write([]byte{dim, dim, 0, 0})
	_ = binary.Write(&buf, le, uint16(1))
	_ = binary.Write(&buf, le, uint16(32))
	_ = binary.Write(&buf, le, uint32(len(payload)))
	_ = binary.Write(&buf, le, uint32(icoDirLen+icoEntryLen))
	buf.Write(payload)
	return buf.Bytes()
}

// testSite is an httptest server with fixed routes that records every request path.
type testSite struct {
	*httptest.Server
	mu     sync.Mutex
	hits   map[string]int
	routes map[string]route
}

// handle adds or replaces a route after the server has started.
func (s *testSite) handle(path string, rt route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = rt
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

type route struct {
	contentType string
	body        []byte
}

func htmlRoute(body string) route {
	return route{contentType: "text/html; charset=utf-8", body: []byte(body)}
}

func pngRoute(body []byte) route {
	return route{contentType: "image/png", body: body}
}

// newTestSite serves routes and answers 404 for everything else.
func newTestSite(t *testing.T, routes map[string]route) *testSite {
	t.Helper()
	site := &testSite{hits: make(map[string]int), routes: make(map[string]route)}
	for p, rt := range routes {
		site.routes[p] = rt
	}
	site.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.hits[r.URL.Path]++
		rt, ok := site.routes[r.URL.Path]
		site.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", rt.contentType)
		_, _ = w.Write(rt.body)
	}))
	t.Cleanup(site.Close)
	return site
}

// newTestFetcher returns a Fetcher writing into a temp directory.
func newTestFetcher(t *testing.T) (*Fetcher, *ImageStore) {
	t.Helper()
	store, err := NewImageStore(t.TempDir(), "/images")
	require.NoError(t, err)
	d := NewHTTPDownloader(DownloaderConfig{Timeout: 5 * time.Second})
	return NewFetcher(d, store), store
}

// decodeSaved decodes a stored PNG.
func decodeSaved(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

// hugeBMP is a bare BMP header declaring a 24bpp image of dim x dim pixels with no pixel data.
func hugeBMP(dim int32) []byte {
	le := binary.LittleEndian
	var buf bytes.Buffer
	buf.WriteString("BM")
	_ = binary.Write(&buf, le, uint32(bmpFileHdrLen+dibInfoHdrLen))
	_ = binary.Write(&buf, le, uint32(0))
	_ = binary.Write(&buf, le, uint32(bmpFileHdrLen+dibInfoHdrLen))
	_ = binary.Write(&buf, le, uint32(dibInfoHdrLen))
	_ = binary.Write(&buf, le, dim)
	_ = binary.Write(&buf, le, dim)
	_ = binary.Write(&buf, le, uint16(1))
	_ = binary.Write(&buf, le, uint16(24))
	buf.Write(make([]byte, dibInfoHdrLen-16))
	return buf.Bytes()
}

// hugeICO wraps a 32bpp DIB header declaring dim x dim pixels with no pixel data.
func hugeICO(dim int32) []byte {
	le := binary.LittleEndian
	var dib bytes.Buffer
	_ = binary.Write(&dib, le, uint32(dibInfoHdrLen))
	_ = binary.Write(&dib, le, dim)
	_ = binary.Write(&dib, le, dim&^1)
	_ = binary.Write(&dib, le, uint16(1))
	_ = binary.Write(&dib, le, uint16(32))
	dib.Write(make([]byte, dibInfoHdrLen-16))
	return icoFile(icoPart{size: 16, bitCount: 32, payload: dib.Bytes()})
}
