package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeHeader(t *testing.T) {
	assert.Equal(t, "", RangeHeader(0, 0))
	assert.Equal(t, "bytes=0-99", RangeHeader(0, 100))
	assert.Equal(t, "bytes=10-19", RangeHeader(10, 10))
	assert.Equal(t, "bytes=512-", RangeHeader(512, 0))
}

func TestListPrefix(t *testing.T) {
	assert.Equal(t, "", ListPrefix(""))
	assert.Equal(t, "", ListPrefix("/"))
	assert.Equal(t, "photos/", ListPrefix("photos"))
	assert.Equal(t, "photos/2023/", ListPrefix("/photos/2023/"))
}

func TestHiddenKey(t *testing.T) {
	assert.False(t, HiddenKey("photos/", "photos/a.jpg"))
	assert.True(t, HiddenKey("photos/", "photos/.thumbs/a.jpg"))
	assert.True(t, HiddenKey("photos/", "photos/.DS_Store"))
	assert.False(t, HiddenKey(".archive/", ".archive/a.jpg"))
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", endpointURL("localhost:9000", false))
	assert.Equal(t, "https://s3.example.com", endpointURL("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", endpointURL("http://minio:9000", true))
}
