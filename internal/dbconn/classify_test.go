package dbconn

import "testing"

func TestIsSelect_True(t *testing.T) {
	ok, err := IsSelect("SELECT id, name FROM users WHERE id = 1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a SELECT statement to classify as a select")
	}
}

func TestIsSelect_False(t *testing.T) {
	ok, err := IsSelect("UPDATE users SET name = 'x' WHERE id = 1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected an UPDATE statement to not classify as a select")
	}
}

func TestIsSelect_ParseError(t *testing.T) {
	if _, err := IsSelect("not even close to sql"); err == nil {
		t.Fatal("expected a parse error for garbage input")
	}
}

func TestIsBareExpression_True(t *testing.T) {
	if !IsBareExpression("status = 'pending' AND priority > 1") {
		t.Fatal("expected a bare boolean expression to parse")
	}
}

func TestIsBareExpression_FullStatementRejected(t *testing.T) {
	if IsBareExpression("1=1; DROP TABLE users") {
		t.Fatal("expected a full statement fragment to be rejected as a bare expression")
	}
}
