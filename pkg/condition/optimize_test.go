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

package condition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clarkok/cdb/pkg/schema"
)

func intSchema() *schema.Schema {
	return &schema.Schema{
		Fields: []schema.Field{{Name: "id", Type: schema.Integer}, {Name: "age", Type: schema.Integer}},
		Primary: 0,
	}
}

func TestCompareRewritesToRange(t *testing.T) {
	s := intSchema()
	expr, count := Optimize(&Compare{Column: "age", Op: LT, Literal: "30"}, s)
	require.Equal(t, 1, count)
	r, ok := expr.(*Range)
	require.True(t, ok)
	require.Equal(t, "30", r.Upper)
}

func TestAndWithFalseIsContagious(t *testing.T) {
	s := intSchema()
	expr, count := Optimize(&And{LHS: False{}, RHS: &Compare{Column: "age", Op: EQ, Literal: "1"}}, s)
	require.Equal(t, 0, count)
	_, isFalse := expr.(False)
	require.True(t, isFalse)
}

func TestAndIntersectsOverlappingRanges(t *testing.T) {
	s := intSchema()
	expr, count := Optimize(&And{
		LHS: &Range{Column: "age", Lower: "10", Upper: "30"},
		RHS: &Range{Column: "age", Lower: "20", Upper: "40"},
	}, s)
	require.Equal(t, 1, count)
	r, ok := expr.(*Range)
	require.True(t, ok)
	require.Equal(t, "20", r.Lower)
	require.Equal(t, "30", r.Upper)
}

func TestAndDisjointRangesAreFalse(t *testing.T) {
	s := intSchema()
	expr, count := Optimize(&And{
		LHS: &Range{Column: "age", Lower: "10", Upper: "20"},
		RHS: &Range{Column: "age", Lower: "30", Upper: "40"},
	}, s)
	require.Equal(t, 0, count)
	_, isFalse := expr.(False)
	require.True(t, isFalse)
}

func TestAndRangeWithContainedEqualityKeepsRange(t *testing.T) {
	s := intSchema()
	expr, _ := Optimize(&And{
		LHS: &Range{Column: "age", Lower: "10", Upper: "30"},
		RHS: &Compare{Column: "age", Op: EQ, Literal: "15"},
	}, s)
	r, ok := expr.(*Range)
	require.True(t, ok)
	require.Equal(t, "10", r.Lower)
}

func TestAndRangeWithUncontainedEqualityIsFalse(t *testing.T) {
	s := intSchema()
	expr, _ := Optimize(&And{
		LHS: &Range{Column: "age", Lower: "10", Upper: "30"},
		RHS: &Compare{Column: "age", Op: EQ, Literal: "99"},
	}, s)
	_, isFalse := expr.(False)
	require.True(t, isFalse)
}

func TestOrAbsorbsFalse(t *testing.T) {
	s := intSchema()
	rhs := &Compare{Column: "age", Op: EQ, Literal: "1"}
	expr, count := Optimize(&Or{LHS: False{}, RHS: rhs}, s)
	require.Equal(t, 1, count)
	require.Equal(t, rhs, expr)
}

func TestOrUnionsOverlappingRanges(t *testing.T) {
	s := intSchema()
	expr, count := Optimize(&Or{
		LHS: &Range{Column: "age", Lower: "10", Upper: "30"},
		RHS: &Range{Column: "age", Lower: "20", Upper: "40"},
	}, s)
	require.Equal(t, 1, count)
	r, ok := expr.(*Range)
	require.True(t, ok)
	require.Equal(t, "10", r.Lower)
	require.Equal(t, "40", r.Upper)
}

func TestOrKeepsDisjointRangesSeparate(t *testing.T) {
	s := intSchema()
	expr, count := Optimize(&Or{
		LHS: &Range{Column: "age", Lower: "10", Upper: "20"},
		RHS: &Range{Column: "age", Lower: "30", Upper: "40"},
	}, s)
	require.Equal(t, 2, count)
	_, ok := expr.(*Or)
	require.True(t, ok)
}

func TestEvaluateCompareAndLogic(t *testing.T) {
	s := intSchema()
	id, _ := schema.FromString(schema.Integer, 0, "5")
	age, _ := schema.FromString(schema.Integer, 0, "25")
	record := append(append([]byte{}, id...), age...)

	expr := &And{
		LHS: &Compare{Column: "id", Op: EQ, Literal: "5"},
		RHS: &Range{Column: "age", Lower: "20", Upper: "30"},
	}
	ok, err := Evaluate(expr, s, record)
	require.NoError(t, err)
	require.True(t, ok)

	expr2 := &Compare{Column: "age", Op: GT, Literal: "25"}
	ok, err = Evaluate(expr2, s, record)
	require.NoError(t, err)
	require.False(t, ok)
}
