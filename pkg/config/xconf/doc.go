// Package xconf 提供日志子系统的配置加载、校验与热更新，基于 koanf 实现。
//
// # 设计理念
//
// xconf 负责把 YAML/JSON 配置文件变成经过校验的 [Settings]：
// 缺省值注入（Default）、必选字段与取值校验（Validate）、
// 到日志注册表选项的转换（LoggerOptions）。进程内的配置治理到此为止，
// 组件按句柄接收 Settings，不读环境全局量。
//
// # 支持的格式
//
//   - YAML（推荐用于 K8s ConfigMap）：.yaml, .yml
//   - JSON：.json
//
// # 热更新
//
// 支持文件变更监视（基于 fsnotify）：监视目录而非文件本身，兼容
// vim/emacs 的原子写入；内置防抖；新配置校验失败时保留旧配置并通过
// 回调报告错误。热更新只对运行时可调整的字段生效（日志级别），
// 目录布局与轮转参数需要重启进程。
package xconf
