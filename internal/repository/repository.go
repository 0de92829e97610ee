package repository

import (
	"errors"

	"github.com/lib/pq"
)

// isUniqueViolation 是否为唯一约束冲突（Postgres 23505）
// 遥测自然键去重依赖该判断：重复投递按成功的 no-op 处理
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
