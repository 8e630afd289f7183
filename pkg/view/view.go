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

package view

import "github.com/clarkok/cdb/pkg/schema"

// View is the shape every row source presents to the query engine,
// regardless of whether it's backed by an on-disk B+ tree or an
// in-memory skip list.
type View interface {
	// Schema describes the records this view yields.
	Schema() *schema.Schema

	Begin() (Iterator, error)
	End() Iterator
	LowerBound(key []byte) (Iterator, error)
	UpperBound(key []byte) (Iterator, error)

	// Find looks up a single record by its key, as used by
	// select_indexed to resolve a primary key against an index.
	Find(key []byte) (value []byte, found bool, err error)
}
