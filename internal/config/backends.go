package config

import (
	_ "github.com/any-hub/asset-cache/internal/upstream/httpstore"
	_ "github.com/any-hub/asset-cache/internal/upstream/memstore"
	_ "github.com/any-hub/asset-cache/internal/upstream/miniostore"
)
