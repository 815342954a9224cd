// Package upstream 定义缓存背后的权威资产存储，并提供统一的后端注册入口。
//
// 后端作者需要：
//   1. 在 internal/upstream/<backend>/ 目录下实现 Store 接口；
//   2. 通过本包暴露的 MustRegister 在 init() 中注册工厂函数；
//   3. 资产不存在时返回（或包裹）ErrNotFound，其余错误原样返回，由调用方决定是否重试。
//
// 配置层通过空导入加载全部后端，再按 [Upstream].Type 调用 Open 构造实例。
package upstream
