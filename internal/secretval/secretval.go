// Package secretval is a host-side custom-data object demonstrating
// the VM's Custom value contract (spec.md §6's "custom data
// contract"): a reference-tallied opaque object that zeroes its
// payload and notifies the host when the last Value referencing it
// disappears.
//
// Grounded on the teacher pack's core/sdk/secret package: a tainted
// string handle that never prints its raw value, instead exposing a
// short deterministic fingerprint computed with a keyed BLAKE2s PRF
// over a BLAKE2b digest of the value, base58-encoded for compactness.
package secretval

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"

	"github.com/derp-lang/derp/internal/value"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// encodeBase58 encodes an 8-byte digest prefix, Bitcoin-alphabet style
// (no 0/O/I/l ambiguity) — the teacher pack's EncodeBase58, adapted to
// take a [8]byte, so the type fixes the size the secret package checked
// with a panic.
func encodeBase58(data [8]byte) string {
	num := data
	var result []byte
	for i := 0; i < 8; i++ {
		if num[i] == 0 && i == 7 {
			continue
		}
		var remainder byte
		for j := 0; j < 8; j++ {
			temp := int(num[j]) + int(remainder)*256
			num[j] = byte(temp / 58)
			remainder = byte(temp % 58)
		}
		result = append([]byte{base58Alphabet[remainder]}, result...)
	}
	for i := 0; i < len(data); i++ {
		if data[i] != 0 {
			break
		}
		result = append([]byte{'1'}, result...)
	}
	return string(result)
}

// Fingerprint derives a short, stable, non-reversible label for a
// secret value: keyed BLAKE2s-128 over (label || BLAKE2b-256(value)),
// truncated to 8 bytes and base58-encoded. Two calls with the same
// key/label/value always agree; the raw value cannot be recovered
// from the fingerprint.
func Fingerprint(key [32]byte, label, value string) string {
	var input bytes.Buffer
	input.WriteString(label)
	input.WriteByte(0)
	sum := blake2b.Sum256([]byte(value))
	input.Write(sum[:])

	h, err := blake2s.New128(key[:])
	if err != nil {
		panic(fmt.Sprintf("secretval: blake2s.New128: %v", err))
	}
	h.Write(input.Bytes())
	digest := h.Sum(nil)
	var prefix [8]byte
	copy(prefix[:], digest[:8])
	return "secret:" + encodeBase58(prefix)
}

// SecretValue is the host object installed behind a Custom Value: a tainted
// string that the script can pass around and compare for identity
// but never print or otherwise read back without the host's help.
type SecretValue struct {
	raw   string
	label string
	key   [32]byte
	freed bool
}

// New wraps raw behind a SecretValue, keyed for fingerprinting under label.
func New(raw, label string, key [32]byte) *SecretValue {
	return &SecretValue{raw: raw, label: label, key: key}
}

// Fingerprint returns this secret's display fingerprint.
func (s *SecretValue) Fingerprint() string {
	return Fingerprint(s.key, s.label, s.raw)
}

// String returns the fingerprint, never the raw value.
func (s *SecretValue) String() string { return s.Fingerprint() }

// Format prints the fingerprint for every fmt verb, so %v, %+v and %#v
// never reach the raw field.
func (s *SecretValue) Format(f fmt.State, _ rune) { fmt.Fprint(f, s.Fingerprint()) }

// Reveal returns the raw value — a host-only escape hatch; scripts
// never get a reference to the SecretValue itself, only a Custom Value
// wrapping it, and the native surface installed in SPEC_FULL.md's
// domain stack never exposes this method to script code.
func (s *SecretValue) Reveal() string { return s.raw }

// OnLastRefGone implements value.CustomObject: zero the payload once
// nothing in the script or host references it anymore.
func (s *SecretValue) OnLastRefGone() {
	if s.freed {
		return
	}
	s.raw = ""
	s.freed = true
}

// Wrap installs a fresh SecretValue as a Custom Value through host, the
// narrow VM allocator interface natives also use.
func Wrap(host value.VMHost, raw, label string, key [32]byte) *value.Handle {
	h := host.MakeObject()
	h.Value().SetCustom(New(raw, label, key))
	h.Value().SetCopyable(false)
	return h
}

// NativeConstructor returns a value.NativeFunc implementing the
// `secret(str)` native (SPEC_FULL.md §6.1): wraps its string argument
// as a Custom SecretValue fingerprinted under label with key. Hosts
// wire this into a context themselves (it is a demo native, not part
// of the core built-ins installed by every VM).
func NativeConstructor(label string, key [32]byte) value.NativeFunc {
	return func(call *value.Call) *value.Handle {
		if len(call.Params) != 1 {
			call.Errors.AddError("secret() expects 1 argument, got %d", len(call.Params))
			return nil
		}
		v := call.Params[0].Value()
		if v.Kind() != value.KindString {
			call.Errors.AddError("secret(): argument must be a string, got %s", v.Kind())
			return nil
		}
		return Wrap(call.VM, v.Str(), label, key)
	}
}

// AsSecret extracts the *SecretValue behind a Custom Value, or nil if v
// isn't one (or isn't a SecretValue specifically — a host could install
// other CustomObject kinds side by side).
func AsSecret(v *value.Value) *SecretValue {
	if v.Kind() != value.KindCustom {
		return nil
	}
	s, _ := v.Custom().(*SecretValue)
	return s
}
