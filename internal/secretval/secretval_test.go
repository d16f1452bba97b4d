package secretval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derp-lang/derp/internal/diag"
	"github.com/derp-lang/derp/internal/value"
)

// fakeHost is the narrowest possible value.VMHost: Wrap and
// NativeConstructor only ever call MakeObject, so a host doesn't need
// to be a real VM to exercise this package.
type fakeHost struct{}

func (fakeHost) MakeObject() *value.Handle {
	v := value.New()
	v.MarkRegistered()
	return value.Bind(v)
}

func TestFingerprintIsDeterministic(t *testing.T) {
	t.Parallel()
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcde"))

	a := Fingerprint(key, "test", "hunter2")
	b := Fingerprint(key, "test", "hunter2")
	assert.Equal(t, a, b)
}

func TestFingerprintDependsOnLabelAndKey(t *testing.T) {
	t.Parallel()
	var key1, key2 [32]byte
	copy(key1[:], []byte("0123456789abcdef0123456789abcde"))
	copy(key2[:], []byte("fedcba9876543210fedcba9876543210"))

	base := Fingerprint(key1, "label-a", "hunter2")
	diffLabel := Fingerprint(key1, "label-b", "hunter2")
	diffKey := Fingerprint(key2, "label-a", "hunter2")

	assert.NotEqual(t, base, diffLabel, "label is part of the fingerprint's domain separation")
	assert.NotEqual(t, base, diffKey, "key changes the fingerprint")
}

func TestFingerprintNeverContainsRawValue(t *testing.T) {
	t.Parallel()
	var key [32]byte
	fp := Fingerprint(key, "test", "correct-horse-battery-staple")
	assert.NotContains(t, fp, "correct-horse-battery-staple")
}

func TestOnLastRefGoneZeroesPayload(t *testing.T) {
	t.Parallel()
	s := New("hunter2", "test", [32]byte{})
	assert.Equal(t, "hunter2", s.Reveal())

	s.OnLastRefGone()
	assert.Equal(t, "", s.Reveal())

	// idempotent: a second call must not panic or change behavior.
	s.OnLastRefGone()
	assert.Equal(t, "", s.Reveal())
}

func TestWrapProducesNonCopyableCustomValue(t *testing.T) {
	t.Parallel()
	h := Wrap(fakeHost{}, "hunter2", "test", [32]byte{})
	defer h.Destroy()

	assert.Equal(t, value.KindCustom, h.Value().Kind())
	assert.False(t, h.Value().IsCopyable())

	s := AsSecret(h.Value())
	require.NotNil(t, s)
	assert.Equal(t, "hunter2", s.Reveal())
}

func TestNativeConstructorRoundTrip(t *testing.T) {
	t.Parallel()
	fn := NativeConstructor("demo", [32]byte{1, 2, 3})

	arg := value.New()
	arg.MarkRegistered()
	arg.SetString("hunter2")
	argHandle := value.Bind(arg)
	defer argHandle.Destroy()

	errs := diag.NewState()
	call := &value.Call{
		VM:     fakeHost{},
		Params: []*value.Handle{argHandle},
		Errors: errs,
	}
	result := fn(call)
	require.False(t, errs.HasErrors())
	require.NotNil(t, result)
	defer result.Destroy()

	s := AsSecret(result.Value())
	require.NotNil(t, s)
	assert.Equal(t, "hunter2", s.Reveal())
}

func TestNativeConstructorRejectsWrongArgCount(t *testing.T) {
	t.Parallel()
	fn := NativeConstructor("demo", [32]byte{})
	errs := diag.NewState()
	call := &value.Call{VM: fakeHost{}, Params: nil, Errors: errs}
	result := fn(call)
	assert.Nil(t, result)
	assert.True(t, errs.HasErrors())
}

func TestNativeConstructorRejectsNonStringArg(t *testing.T) {
	t.Parallel()
	fn := NativeConstructor("demo", [32]byte{})
	arg := value.New()
	arg.MarkRegistered()
	arg.SetInt(5)
	argHandle := value.Bind(arg)
	defer argHandle.Destroy()

	errs := diag.NewState()
	call := &value.Call{VM: fakeHost{}, Params: []*value.Handle{argHandle}, Errors: errs}
	result := fn(call)
	assert.Nil(t, result)
	assert.True(t, errs.HasErrors())
}

func TestAsSecretReturnsNilForNonCustomValue(t *testing.T) {
	t.Parallel()
	v := value.New()
	v.SetInt(5)
	assert.Nil(t, AsSecret(v))
}
