package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"int", IRInt(42), `42`},
		{"negative", IRInt(-1), `-1`},
		{"bool", IRBool(false), `false`},
		{"node id", NodeID("n1"), `"n1"`},
		{"go int", 3, `3`},
		{"empty array", IRArray{}, `[]`},
		{"empty object", IRObject{}, `{}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MarshalCanonical(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestMarshalCanonicalClosureRows(t *testing.T) {
	rows := IRArray{
		IRObject{"ancestor": IRString("A"), "descendant": IRString("B"), "depth": IRInt(1)},
		IRObject{"ancestor": IRString("B"), "descendant": IRString("B"), "depth": IRInt(0)},
	}
	got, err := MarshalCanonical(rows)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"ancestor":"A","depth":1,"descendant":"B"},{"ancestor":"B","depth":0,"descendant":"B"}]`,
		string(got))
}

func TestMarshalCanonicalMapStringAny(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"z": 1, "a": []any{"x", true}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",true],"z":1}`, string(got))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(IRString("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(got))
}

func TestMarshalCanonicalEscapes(t *testing.T) {
	got, err := MarshalCanonical(IRString("q\"b\\n\n\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"q\"b\\n\n\u0001"`, string(got))
}

func TestMarshalCanonicalLineSeparatorsLiteral(t *testing.T) {
	got, err := MarshalCanonical(IRString("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	got, err := MarshalCanonical(IRString("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	for _, v := range []any{nil, IRNull{}, 1.5, IRObject{"k": IRNull{}}, struct{}{}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "value %#v", v)
	}
}
