// Package catalog 把 Chocolatey 包标识解析为 .nupkg 下载地址。
// 解析器按名称注册（html、odata），由配置项 Resolver 选择。
package catalog
