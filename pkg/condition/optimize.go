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

import "github.com/clarkok/cdb/pkg/schema"

// Optimize rewrites expr bottom-up against s, returning an equivalent
// expression and a coarse complexity count (lower is easier to
// execute): Compare/Range contribute 1, And/Or sum their children,
// False contributes 0.
func Optimize(expr Expr, s *schema.Schema) (Expr, int) {
	switch e := expr.(type) {
	case *And:
		return optimizeAnd(e, s)
	case *Or:
		return optimizeOr(e, s)
	case *Compare:
		return optimizeCompare(e, s)
	case *Range:
		return e, 1
	case False:
		return e, 0
	default:
		return expr, 0
	}
}

// optimizeCompare turns an inequality into an equivalent half-open
// Range using the column's domain extrema, per spec rule 1. EQ/NE
// compares are left as is.
func optimizeCompare(e *Compare, s *schema.Schema) (Expr, int) {
	f, _, err := s.Column(e.Column)
	if err != nil {
		return e, 1
	}
	t := f.Type

	switch e.Op {
	case EQ, NE:
		return e, 1
	case LT:
		return &Range{Column: e.Column, Lower: limitString(t, f.Length, false), Upper: e.Literal}, 1
	case LE:
		upper, err := stepString(t, f.Length, e.Literal, true)
		if err != nil {
			return e, 1
		}
		return &Range{Column: e.Column, Lower: limitString(t, f.Length, false), Upper: upper}, 1
	case GT:
		lower, err := stepString(t, f.Length, e.Literal, true)
		if err != nil {
			return e, 1
		}
		return &Range{Column: e.Column, Lower: lower, Upper: limitString(t, f.Length, true)}, 1
	case GE:
		return &Range{Column: e.Column, Lower: e.Literal, Upper: limitString(t, f.Length, true)}, 1
	default:
		return e, 1
	}
}

func limitString(t schema.Type, length int, max bool) string {
	var buf []byte
	if max {
		buf = schema.MaxLimit(t, length)
	} else {
		buf = schema.MinLimit(t, length)
	}
	s, _ := schema.ToString(t, buf)
	return s
}

func stepString(t schema.Type, length int, literal string, up bool) (string, error) {
	buf, err := schema.FromString(t, length, literal)
	if err != nil {
		return "", err
	}
	if up {
		buf, err = schema.Next(t, length, buf)
	} else {
		buf, err = schema.Prev(t, length, buf)
	}
	if err != nil {
		return "", err
	}
	return schema.ToString(t, buf)
}

// isRange reports whether e is a literal *Range, returning its column
// and bounds. A Compare of any operator is not accepted.
func isRange(e Expr) (col string, lower, upper string, ok bool) {
	switch v := e.(type) {
	case *Range:
		return v.Column, v.Lower, v.Upper, true
	}
	return "", "", "", false
}

// optimizeAnd implements spec rule 2: False is contagious, ranges
// over the same column intersect (empty intersection folds to
// False), a range and an equality over the same column test
// containment, and children are ordered cheapest-first.
func optimizeAnd(e *And, s *schema.Schema) (Expr, int) {
	lhs, lhCount := Optimize(e.LHS, s)
	if _, isFalse := lhs.(False); isFalse {
		return False{}, 0
	}
	rhs, rhCount := Optimize(e.RHS, s)
	if _, isFalse := rhs.(False); isFalse {
		return False{}, 0
	}

	if lhCount > rhCount {
		lhs, rhs = rhs, lhs
		lhCount, rhCount = rhCount, lhCount
	}

	lCol, lLower, lUpper, lIsRange := isRange(lhs)
	rCol, rLower, rUpper, rIsRange := isRange(rhs)

	if lIsRange && rIsRange && lCol == rCol {
		f, _, err := s.Column(lCol)
		if err != nil {
			return &And{lhs, rhs}, lhCount + rhCount
		}
		less := schema.LessFuncForType(f.Type)
		toBuf := func(lit string) []byte { b, _ := schema.FromString(f.Type, f.Length, lit); return b }
		toStr := func(b []byte) string { s, _ := schema.ToString(f.Type, b); return s }

		lLowB, lUpB := toBuf(lLower), toBuf(lUpper)
		rLowB, rUpB := toBuf(rLower), toBuf(rUpper)

		if less(lLowB, rUpB) && less(rLowB, lUpB) {
			newLower := lLowB
			if less(lLowB, rLowB) {
				newLower = rLowB
			}
			newUpper := lUpB
			if less(rUpB, lUpB) {
				newUpper = rUpB
			}
			return &Range{Column: lCol, Lower: toStr(newLower), Upper: toStr(newUpper)}, 1
		}
		return False{}, 0
	}

	if other, otherCol, eq, hasEq := asEquality(rhs); lIsRange && hasEq && lCol == otherCol {
		_ = other
		f, _, err := s.Column(lCol)
		if err == nil {
			less := schema.LessFuncForType(f.Type)
			key, _ := schema.FromString(f.Type, f.Length, eq)
			lowB, _ := schema.FromString(f.Type, f.Length, lLower)
			upB, _ := schema.FromString(f.Type, f.Length, lUpper)
			if !less(key, lowB) && less(key, upB) {
				return rhs, 1
			}
			return False{}, 0
		}
	}
	if other, otherCol, eq, hasEq := asEquality(lhs); rIsRange && hasEq && rCol == otherCol {
		_ = other
		f, _, err := s.Column(rCol)
		if err == nil {
			less := schema.LessFuncForType(f.Type)
			key, _ := schema.FromString(f.Type, f.Length, eq)
			lowB, _ := schema.FromString(f.Type, f.Length, rLower)
			upB, _ := schema.FromString(f.Type, f.Length, rUpper)
			if !less(key, lowB) && less(key, upB) {
				return lhs, 1
			}
			return False{}, 0
		}
	}

	return &And{lhs, rhs}, lhCount + rhCount
}

func asEquality(e Expr) (expr Expr, column, literal string, ok bool) {
	if c, isCompare := e.(*Compare); isCompare && c.Op == EQ {
		return c, c.Column, c.Literal, true
	}
	return nil, "", "", false
}

// optimizeOr implements spec rule 3: False branches are absorbed,
// overlapping ranges over the same column union, children are
// ordered cheapest-first.
func optimizeOr(e *Or, s *schema.Schema) (Expr, int) {
	lhs, lhCount := Optimize(e.LHS, s)
	rhs, rhCount := Optimize(e.RHS, s)

	if _, isFalse := lhs.(False); isFalse {
		return rhs, rhCount
	}
	if _, isFalse := rhs.(False); isFalse {
		return lhs, lhCount
	}

	if lhCount > rhCount {
		lhs, rhs = rhs, lhs
		lhCount, rhCount = rhCount, lhCount
	}

	lCol, lLower, lUpper, lIsRange := isRange(lhs)
	rCol, rLower, rUpper, rIsRange := isRange(rhs)

	if lIsRange && rIsRange && lCol == rCol {
		f, _, err := s.Column(lCol)
		if err == nil {
			less := schema.LessFuncForType(f.Type)
			toBuf := func(lit string) []byte { b, _ := schema.FromString(f.Type, f.Length, lit); return b }
			toStr := func(b []byte) string { s, _ := schema.ToString(f.Type, b); return s }

			lLowB, lUpB := toBuf(lLower), toBuf(lUpper)
			rLowB, rUpB := toBuf(rLower), toBuf(rUpper)

			// Ranges [lLow,lUp) and [rLow,rUp) overlap (or touch)
			// when neither lies entirely before the other.
			if !less(lUpB, rLowB) && !less(rUpB, lLowB) {
				newLower := lLowB
				if less(rLowB, lLowB) {
					newLower = rLowB
				}
				newUpper := lUpB
				if less(lUpB, rUpB) {
					newUpper = rUpB
				}
				return &Range{Column: lCol, Lower: toStr(newLower), Upper: toStr(newUpper)}, 1
			}
		}
	}

	return &Or{lhs, rhs}, lhCount + rhCount
}
