package crypto_util

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// 落库的加密字段带此前缀，便于和历史明文数据共存
const sealedPrefix = "gcm:"

// FieldSealer 对单个数据库字段做静态加密 (收款地址等敏感信息)。
// 密钥为空时退化为明文直通，方便本地开发。
type FieldSealer struct {
	key []byte
}

// NewFieldSealer 从 hex 编码的密钥构造。
// 空串返回明文直通的 Sealer；非法长度报错。
func NewFieldSealer(hexKey string) (*FieldSealer, error) {
	if hexKey == "" {
		return &FieldSealer{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析字段加密密钥失败: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("字段加密密钥长度非法: %d 字节", len(key))
	}
	return &FieldSealer{key: key}, nil
}

// Seal 加密并编码为可落库的字符串
func (s *FieldSealer) Seal(plaintext string) (string, error) {
	if s.key == nil {
		return plaintext, nil
	}
	ct, err := EncryptAESGCM(s.key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Open 解密落库值。无前缀的值按历史明文原样返回。
func (s *FieldSealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s.key == nil {
		return "", fmt.Errorf("字段已加密但未配置密钥")
	}
	ct, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", err
	}
	pt, err := DecryptAESGCM(s.key, ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
