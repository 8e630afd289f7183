/*
Copyright 2024 The CDB Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dbconfig reads the JSON configuration object that opens a
// database: the backing file path and the page accessor policy.
package dbconfig

import (
	"encoding/json"
	"os"

	"github.com/clarkok/cdb/pkg/cdberrors"
)

// defaultCacheLines is used when a config omits cache_lines; it
// equals pagecache.DefaultLineCapacity.
const defaultCacheLines = 100

// Config is the deferred-validation configuration object for opening
// a database file.
type Config struct {
	// Path is the backing file for the block device. Required.
	Path string `json:"path"`

	// CachedAccessor switches between the basic (every page stays
	// pinned until released) and LRU-cached accessor.
	CachedAccessor bool `json:"cached_accessor"`

	// CacheLines is the LRU line capacity when CachedAccessor is set.
	// Zero means use the default.
	CacheLines int `json:"cache_lines"`
}

// ReadFile loads and validates a Config from a JSON file at path.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cdberrors.WrapFatal(err, "dbconfig: read")
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, cdberrors.NewParseError("dbconfig: invalid json: " + err.Error())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks required fields and fills in defaults for optional
// ones left at their zero value.
func (c *Config) Validate() error {
	if c.Path == "" {
		return cdberrors.NewSchemaMisuse("dbconfig: missing required key: path")
	}
	if c.CachedAccessor && c.CacheLines == 0 {
		c.CacheLines = defaultCacheLines
	}
	return nil
}
