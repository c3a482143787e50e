package drivers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/fruitsalade/organizer/internal/config"
)

func TestNewRouterMinio(t *testing.T) {
	r, err := NewRouter(&config.Config{
		ObjectStoreDriver: "minio",
		S3Endpoint:        "localhost:9000",
		S3Region:          "us-east-1",
	})
	require.NoError(t, err)
	defer r.Close()

	loc, err := r.Resolve(context.Background(), "s3://photos/2023")
	require.NoError(t, err)
	assert.Equal(t, "minio", loc.Backend.Type())
	assert.Equal(t, "2023", loc.Key)

	loc, err = r.Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "local", loc.Backend.Type())
}

func TestFromConfigUnknownDriver(t *testing.T) {
	_, err := FromConfig(&config.Config{ObjectStoreDriver: "gcs"})
	assert.Error(t, err)
}
