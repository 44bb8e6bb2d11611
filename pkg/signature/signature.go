package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// ============================================================================
// Webhook 签名校验
// ============================================================================
//
// 【关键点】必须对"原始请求体字节"做校验：
// 解析再序列化得到的 JSON 和渠道签名时用的字节串不是同一个载荷，
// 字段顺序、空白符的任何差异都会让 HMAC 对不上。
// 所以 Dispatcher 要先 GetRawData() 拿原始字节，校验通过后才允许解析。
//
// 校验算法（Flutterwave 约定）：
//   hash = hex( HMAC-SHA256(secret, rawBody) )
//   hash == 请求头 verif-hash
//
// ============================================================================

// Verify 校验 webhook 签名
// 任何异常输入（空签名、空密钥）一律返回 false，绝不 panic
func Verify(secret string, rawBody []byte, providedSignature string) bool {
	if secret == "" || providedSignature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	// 常量时间比较，避免时序侧信道
	return hmac.Equal([]byte(expected), []byte(providedSignature))
}

// Sign 用共享密钥对载荷签名（测试和本地联调用）
func Sign(secret string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
