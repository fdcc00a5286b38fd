// Package cacher 串起一次完整的缓存流程：解析包地址、下载归档、
// 重写安装脚本中的 URL 并把修改后的脚本写回归档。
package cacher
