package canon

import "testing"

func TestMarshalSortsKeys(t *testing.T) {
	v := map[string]interface{}{"b": 1, "a": 2, "c": 3}
	b, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"a":2,"b":1,"c":3}` {
		t.Fatalf("unexpected canonical form: %s", b)
	}
}

func TestMarshalNoWhitespace(t *testing.T) {
	v := struct {
		Foo string `json:"foo"`
		Bar int    `json:"bar"`
	}{Foo: "x", Bar: 2}
	b, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"bar":2,"foo":"x"}` {
		t.Fatalf("unexpected: %s", b)
	}
}

func TestMarshalNestedAndArrays(t *testing.T) {
	v := map[string]interface{}{
		"z": []interface{}{1, 2, 3},
		"a": map[string]interface{}{"y": true, "x": nil},
	}
	b, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"a":{"x":null,"y":true},"z":[1,2,3]}` {
		t.Fatalf("unexpected: %s", b)
	}
}

func TestEqualIgnoresKeyOrder(t *testing.T) {
	a := map[string]interface{}{"x": 1, "y": 2}
	b := map[string]interface{}{"y": 2, "x": 1}
	eq, err := Equal(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !eq {
		t.Fatal("expected equal canonicalization regardless of key order")
	}
}
