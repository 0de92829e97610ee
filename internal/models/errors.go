package models

import "errors"

// 领域错误分类
// NotFound/Conflict/InvalidState/Validation 是面向操作员的预期结果，
// 由 HTTP 层映射为结构化错误响应；LedgerUnavailable 在账本客户端边界被
// 吞掉，只通过 confirmed=false 向外暴露降级状态。
var (
	// ErrNotFound 引用的 Cargo/Courier/Shipment/Alert 不存在
	ErrNotFound = errors.New("not found")

	// ErrConflict 资源不可用或操作已执行过（重复完成、重复处理等）
	ErrConflict = errors.New("conflict")

	// ErrInvalidState 当前生命周期状态不允许该转换
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation 输入不合法
	ErrValidation = errors.New("validation error")

	// ErrLedgerUnavailable 账本网关不可达（非致命，降级信号）
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)
