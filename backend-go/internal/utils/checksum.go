package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum 计算文件内容的 SHA256 (hex)，同库去重用
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
