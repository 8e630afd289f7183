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

// Evaluate tests record (laid out per s) against expr, recursively
// resolving each column reference to its slice within record.
func Evaluate(expr Expr, s *schema.Schema, record []byte) (bool, error) {
	switch e := expr.(type) {
	case *And:
		lhs, err := Evaluate(e.LHS, s, record)
		if err != nil || !lhs {
			return false, err
		}
		return Evaluate(e.RHS, s, record)
	case *Or:
		lhs, err := Evaluate(e.LHS, s, record)
		if err != nil {
			return false, err
		}
		if lhs {
			return true, nil
		}
		return Evaluate(e.RHS, s, record)
	case *Range:
		f, off, err := s.Column(e.Column)
		if err != nil {
			return false, err
		}
		lower, err := schema.FromString(f.Type, f.Length, e.Lower)
		if err != nil {
			return false, err
		}
		upper, err := schema.FromString(f.Type, f.Length, e.Upper)
		if err != nil {
			return false, err
		}
		value := record[off : off+f.Size()]
		less := schema.LessFuncForType(f.Type)
		return !less(value, lower) && less(value, upper), nil
	case *Compare:
		f, off, err := s.Column(e.Column)
		if err != nil {
			return false, err
		}
		literal, err := schema.FromString(f.Type, f.Length, e.Literal)
		if err != nil {
			return false, err
		}
		value := record[off : off+f.Size()]
		less := schema.LessFuncForType(f.Type)
		equal := schema.EqualFuncForType(f.Type)
		switch e.Op {
		case EQ:
			return equal(value, literal), nil
		case NE:
			return !equal(value, literal), nil
		case LT:
			return less(value, literal), nil
		case LE:
			return less(value, literal) || equal(value, literal), nil
		case GT:
			return less(literal, value), nil
		case GE:
			return less(literal, value) || equal(literal, value), nil
		}
		return false, nil
	case False:
		return false, nil
	default:
		return false, nil
	}
}
