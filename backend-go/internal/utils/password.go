package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword 注册时把明文密码哈希落库
// bcrypt 自带随机盐，同一个密码两次哈希结果不同
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash 登录时校验明文与库里的哈希是否匹配
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
