package predicate

import (
	"encoding/base64"
	"testing"

	"github.com/abmgate/abmgate/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []record.Fields{
		{{Name: "id", Value: record.Int(1)}},
		{{Name: "correo", Value: record.String("a@b.c")}, {Name: "activo", Value: record.Bool(true)}},
		{{Name: "precio", Value: record.Float(10.5)}, {Name: "borrado", Value: record.Null()}},
		{{Name: "nombre", Value: record.String("ñandú ☕")}},
	}
	for _, in := range cases {
		payload, err := Encode(in)
		require.NoError(t, err)

		out, ok := Decode(payload)
		require.True(t, ok, "payload %q should decode", payload)
		assert.True(t, in.Equal(out), "got %v want %v", out, in)
	}
}

func TestDecode_StripsNoise(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{"id":7}`))
	noisy := " " + payload[:4] + "\n" + payload[4:] + "\t"

	where, ok := Decode(noisy)
	require.True(t, ok)
	v, found := where.Get("id")
	require.True(t, found)
	n, _ := v.Int64()
	assert.Equal(t, int64(7), n)
}

func TestDecode_Unpadded(t *testing.T) {
	for _, payload := range []string{"eyJpZCI6MX0=", "eyJpZCI6MX0", "eyJpZCI6MX0=="} {
		where, ok := Decode(payload)
		require.True(t, ok, payload)
		v, _ := where.Get("id")
		n, _ := v.Int64()
		assert.Equal(t, int64(1), n, payload)
	}

	// Two padding characters dropped.
	raw := base64.RawStdEncoding.EncodeToString([]byte(`{"sku":"ABC"}`))
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte(`{"sku":"ABC"}`)), raw+"==")
	where, ok := Decode(raw)
	require.True(t, ok)
	v, _ := where.Get("sku")
	s, _ := v.Text()
	assert.Equal(t, "ABC", s)
}

func TestDecode_KeepsKeyOrder(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{"b":1,"a":2,"c":3}`))

	where, ok := Decode(payload)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a", "c"}, where.Names())
}

func TestDecode_MalformedIsAbsent(t *testing.T) {
	full := base64.StdEncoding.EncodeToString([]byte(`{"id":1,"name":"x"}`))

	tests := map[string]string{
		"empty":          "",
		"only noise":     "%%%  ###",
		"not base64":     "abc",
		"not json":       base64.StdEncoding.EncodeToString([]byte("id=1")),
		"json array":     base64.StdEncoding.EncodeToString([]byte(`[1,2]`)),
		"json scalar":    base64.StdEncoding.EncodeToString([]byte(`"id"`)),
		"truncated":      full[:len(full)-8],
		"truncated json": base64.StdEncoding.EncodeToString([]byte(`{"id":`)),
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				where, ok := Decode(payload)
				assert.False(t, ok)
				assert.Nil(t, where)
			})
		})
	}
}
