// Package api 暴露证明签发、回执查询与验证、异步任务以及健康检查的 REST 接口。
package api
