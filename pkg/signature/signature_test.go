package signature

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"event":"charge.completed","data":{"tx_ref":"FLW-001","amount":20000}}`)

	sig := Sign(secret, body)
	require.True(t, Verify(secret, body, sig))
}

// 载荷任何一个字节被改动，原签名都必须失效
func TestVerify_SingleByteMutation(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"event":"charge.completed","data":{"tx_ref":"FLW-001","amount":20000}}`)
	sig := Sign(secret, body)

	for i := range body {
		mutated := make([]byte, len(body))
		copy(mutated, body)
		mutated[i] ^= 0x01

		require.False(t, Verify(secret, mutated, sig), "第 %d 字节被改动后签名仍通过", i)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	body := []byte(`{"event":"charge.completed"}`)
	sig := Sign("secret-a", body)

	require.False(t, Verify("secret-b", body, sig))
}

func TestVerify_MalformedInput(t *testing.T) {
	body := []byte("anything")

	// 空签名、空密钥一律拒绝，不 panic
	require.False(t, Verify("secret", body, ""))
	require.False(t, Verify("", body, Sign("secret", body)))
	require.False(t, Verify("secret", nil, "deadbeef"))
	require.False(t, Verify("secret", body, "not-a-hex-signature"))
}
