package dbconn

import "testing"

func TestRow_AtAndGet(t *testing.T) {
	r := NewRow([]string{"id", "name"}, []interface{}{1, "alice"})

	if r.At(0) != 1 || r.At(1) != "alice" {
		t.Fatalf("unexpected positional values: %v, %v", r.At(0), r.At(1))
	}

	v, ok := r.Get("name")
	if !ok || v != "alice" {
		t.Fatalf("expected name=alice, got %v, ok=%v", v, ok)
	}

	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected missing field to report ok=false")
	}
}

func TestRow_At_OutOfRange(t *testing.T) {
	r := NewRow([]string{"id"}, []interface{}{1})
	if r.At(-1) != nil || r.At(5) != nil {
		t.Fatal("out-of-range At() must return nil, not panic")
	}
}

func TestRow_Set_OverwritesInPlace(t *testing.T) {
	r := NewRow([]string{"id"}, []interface{}{1})
	r.Set("id", 2)
	if r.Len() != 1 {
		t.Fatalf("overwriting an existing field must not grow the row, got len=%d", r.Len())
	}
	if v, _ := r.Get("id"); v != 2 {
		t.Fatalf("expected id=2 after Set, got %v", v)
	}
}

func TestRow_Set_AppendsUnknownField(t *testing.T) {
	r := NewRow([]string{"id"}, []interface{}{1})
	r.Set("name", "bob")
	if r.Len() != 2 {
		t.Fatalf("expected row to grow to 2 fields, got %d", r.Len())
	}
	if v, ok := r.Get("name"); !ok || v != "bob" {
		t.Fatalf("expected name=bob, got %v, ok=%v", v, ok)
	}
}

func TestRow_Equal(t *testing.T) {
	r := NewRow([]string{"id", "name"}, []interface{}{1, "alice"})

	if !r.Equal(map[string]interface{}{"id": 1, "name": "alice"}) {
		t.Fatal("expected row to equal its own field mapping")
	}
	if r.Equal(map[string]interface{}{"id": 1}) {
		t.Fatal("extra fields on the row must break equality against a smaller mapping")
	}
	if r.Equal(map[string]interface{}{"id": 1, "name": "bob"}) {
		t.Fatal("differing field value must break equality")
	}
}

func TestSelectResult_LenAndFirst(t *testing.T) {
	empty := &SelectResult{}
	if empty.Len() != 0 || empty.First() != nil {
		t.Fatal("expected empty SelectResult to report zero length and nil First()")
	}

	r := NewRow([]string{"id"}, []interface{}{1})
	result := &SelectResult{Fields: []string{"id"}, Rows: []*Row{r}}
	if result.Len() != 1 || result.First() != r {
		t.Fatal("expected single-row result to report length 1 and First() == the row")
	}
}
